package di

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gocrud/ioc/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDefinition("repo", StructOf[memRepository](), WithAliases("store"))))
	require.NoError(t, r.Register(NewDefinition("service", Constructor(NewUserService))))

	def, err := r.Lookup("store")
	require.NoError(t, err)
	assert.Equal(t, "repo", def.Name)
	assert.Equal(t, TypeOf[*memRepository](), def.Type)
	assert.Equal(t, ScopeSingleton, def.Scope)

	assert.Equal(t, []string{"repo", "service"}, r.Names())
	assert.Equal(t, []string{"store"}, r.AliasesOf("repo"))
	assert.True(t, r.Contains("store"))

	_, err = r.Lookup("missing")
	var nsd *NoSuchDefinitionError
	assert.ErrorAs(t, err, &nsd)
}

func TestRegistryRegisterClonesDefinition(t *testing.T) {
	r := NewRegistry()
	def := NewDefinition("repo", StructOf[memRepository](), WithQualifiers("mem"))
	require.NoError(t, r.Register(def))

	def.Qualifiers[0] = "changed"
	got, err := r.Lookup("repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"mem"}, got.Qualifiers)
}

func TestRegistryOverrideWarns(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry()
	r.SetLogger(logging.NewWriterLogger(&buf, logging.LogLevelDebug))

	require.NoError(t, r.Register(NewDefinition("repo", StructOf[memRepository](), WithSource("a.yaml:1"))))
	require.NoError(t, r.Register(NewDefinition("other", StructOf[sqlRepository]())))
	require.NoError(t, r.Register(NewDefinition("repo", StructOf[sqlRepository](), WithSource("b.yaml:3"))))

	assert.Contains(t, buf.String(), "overriding definition")
	assert.Contains(t, buf.String(), "b.yaml:3")
	// 覆盖保留原来的登记位置
	assert.Equal(t, []string{"repo", "other"}, r.Names())
	assert.Equal(t, TypeOf[*sqlRepository](), r.TypeOf("repo"))
}

func TestRegistryFrozenRules(t *testing.T) {
	r := NewRegistry()
	instantiated := map[string]bool{}
	r.instantiated = func(name string) bool { return instantiated[name] }

	require.NoError(t, r.Register(NewDefinition("repo", StructOf[memRepository]())))
	r.Freeze()
	assert.True(t, r.Frozen())

	err := r.Register(NewDefinition("new", StructOf[memRepository]()))
	assert.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, r.Alias("repo", "store"), ErrFrozen)

	// 尚未实例化，允许值覆盖
	require.NoError(t, r.Register(NewDefinition("repo", StructOf[sqlRepository]())))

	instantiated["repo"] = true
	err = r.Register(NewDefinition("repo", StructOf[memRepository]()))
	var dup *DuplicateDefinitionError
	assert.ErrorAs(t, err, &dup)
}

func TestRegistryAliases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDefinition("repo", StructOf[memRepository]())))
	require.NoError(t, r.Alias("repo", "a"))
	require.NoError(t, r.Alias("a", "b"))

	assert.Equal(t, "repo", r.CanonicalName("b"))
	assert.Equal(t, []string{"a", "b"}, r.AliasesOf("repo"))

	assert.Error(t, r.Alias("b", "a"), "alias cycle")
	assert.Error(t, r.Alias("repo", "repo"))

	err := r.Register(NewDefinition("a", StructOf[memRepository]()))
	var de *DefinitionError
	assert.ErrorAs(t, err, &de)

	err = r.Register(NewDefinition("x", StructOf[memRepository](), WithAliases("repo")))
	assert.ErrorAs(t, err, &de)
}

func TestRegistryRejectsInvalidStrategies(t *testing.T) {
	cases := []struct {
		name string
		def  *Definition
	}{
		{"empty name", NewDefinition("", StructOf[memRepository]())},
		{"not a struct", NewDefinition("n", StructOf[int]())},
		{"constructor not func", NewDefinition("n", Constructor(42))},
		{"constructor bad results", NewDefinition("n", Constructor(func() (int, int) { return 1, 2 }))},
		{"constructor arg count", NewDefinition("n", Constructor(NewUserService, Ref("a"), Ref("b")))},
		{"factory without method", NewDefinition("n", FactoryMethod("f", ""))},
		{"declared type mismatch", NewDefinition("n", StructOf[sqlRepository](), As[*memRepository]())},
	}
	r := NewRegistry()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Register(tc.def)
			var de *DefinitionError
			assert.True(t, errors.As(err, &de), "got %v", err)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistryFindByType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDefinition("sql", StructOf[sqlRepository]())))
	require.NoError(t, r.Register(NewDefinition("service", Constructor(NewUserService))))
	require.NoError(t, r.Register(NewDefinition("mem", StructOf[memRepository]())))
	require.NoError(t, r.Register(NewDefinition("factory", Instance(&connectionFactory{URL: "x"}))))
	require.NoError(t, r.Register(NewDefinition("conn", FactoryMethod("factory", "Open"))))

	var names []string
	for _, d := range r.FindByType(TypeOf[Repository]()) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"sql", "mem"}, names)

	assert.Equal(t, TypeOf[*connection](), r.TypeOf("conn"))
	require.Len(t, r.FindByType(TypeOf[*connection]()), 1)
}

func TestRegistryVersion(t *testing.T) {
	r := NewRegistry()
	v0 := r.Version()
	require.NoError(t, r.Register(NewDefinition("repo", StructOf[memRepository]())))
	v1 := r.Version()
	require.NoError(t, r.Alias("repo", "store"))
	assert.Greater(t, v1, v0)
	assert.Greater(t, r.Version(), v1)
}

func TestDecapitalize(t *testing.T) {
	assert.Equal(t, "userService", Decapitalize("UserService"))
	assert.Equal(t, "URLCache", Decapitalize("URLCache"))
	assert.Equal(t, "a", Decapitalize("A"))
	assert.Equal(t, "", Decapitalize(""))
}
