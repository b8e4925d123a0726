package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mailer struct {
	Host    string
	Port    int
	Tags    []string
	Greeter Greeter
}

func greeterCatalog() *Catalog {
	return NewCatalog().
		Type("englishGreeter", di.TypeOf[englishGreeter]()).
		Type("greeter", di.TypeOf[Greeter]()).
		Type("mailer", di.TypeOf[mailer]()).
		Func("newGreetingService", newGreetingService)
}

const greetingDocument = `
declarations:
  Prototype:
    meta: [Component]
    attributes:
      scope: prototype
components:
  - name: base
    abstract: true
    type: englishGreeter
    properties:
      prefix: "${greeting.prefix:hello}"
  - name: greeter
    parent: base
    declarations: [Service]
  - name: service
    constructor: newGreetingService
    args:
      - ref: greeter
  - name: mailer
    type: mailer
    declarations: [Prototype]
    properties:
      host: localhost
      port: "${mail.port:25}"
      tags: [a, b]
      greeter: {autowire: true, type: greeter}
aliases:
  welcome: service
`

func TestYAMLSourceEndToEnd(t *testing.T) {
	src := FromYAML("beans.yaml", []byte(greetingDocument), greeterCatalog())
	chain := config.NewChain(config.NewMapSource("test", map[string]any{"mail": map[string]any{"port": 2525}}))

	registry, err := NewResolver(chain).Resolve(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeter", "service", "mailer"}, registry.Names())
	assert.Equal(t, "service", registry.CanonicalName("welcome"))

	def, err := registry.Lookup("mailer")
	require.NoError(t, err)
	assert.Equal(t, di.ScopePrototype, def.Scope)
	assert.Equal(t, "beans.yaml:20", def.Source)

	c := di.NewContainer(di.WithRegistry(registry), di.WithPlaceholderResolver(chain))
	require.NoError(t, c.Freeze(context.Background()))

	svc, err := di.ResolveNamed[*greetingService](c, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "hello world", svc.Hello())

	m, err := di.Resolve[*mailer](c)
	require.NoError(t, err)
	assert.Equal(t, "localhost", m.Host)
	assert.Equal(t, 2525, m.Port)
	assert.Equal(t, []string{"a", "b"}, m.Tags)
	assert.NotNil(t, m.Greeter)
}

func TestYAMLParentOverridesProperties(t *testing.T) {
	doc := `
components:
  - name: base
    abstract: true
    type: englishGreeter
    properties:
      prefix: hello
  - name: loud
    parent: base
    properties:
      prefix: HELLO
`
	registry, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(doc), greeterCatalog()))
	require.NoError(t, err)
	assert.Equal(t, []string{"loud"}, registry.Names())

	def, err := registry.Lookup("loud")
	require.NoError(t, err)
	require.Len(t, def.Properties, 1)
	assert.Equal(t, "HELLO", def.Properties[0].Value.Literal)
}

func TestYAMLErrorsCarryLine(t *testing.T) {
	cases := []struct {
		name   string
		doc    string
		source string
		reason string
	}{
		{"unknown type", "components:\n  - name: x\n    type: missing\n", "beans.yaml:2", "unknown type 'missing'"},
		{"unknown constructor", "components:\n  - constructor: nope\n", "beans.yaml:2", "unknown constructor 'nope'"},
		{"no strategy", "components:\n  - name: x\n", "beans.yaml:2", "needs a type"},
		{"unknown parent", "components:\n  - name: x\n    parent: y\n", "beans.yaml:2", "unknown parent 'y'"},
		{"args on type", "components:\n  - type: englishGreeter\n    args: [1]\n", "beans.yaml:2", "args require"},
		{"half factory", "components:\n  - factory-bean: f\n", "beans.yaml:2", "together"},
		{"unknown declaration", "components:\n  - type: englishGreeter\n    declarations: [Nope]\n", "beans.yaml:2", "unknown declaration 'Nope'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(tc.doc), greeterCatalog()))
			var de *di.DefinitionError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.source, de.Source)
			assert.Contains(t, de.Reason, tc.reason)
		})
	}
}

func TestYAMLParentCycle(t *testing.T) {
	doc := `
components:
  - name: a
    parent: b
  - name: b
    parent: a
`
	_, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(doc), greeterCatalog()))
	var de *di.DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "parent cycle a -> b -> a")
}

func TestYAMLDeclarationCycle(t *testing.T) {
	doc := `
declarations:
  A:
    meta: [B]
  B:
    meta: [A]
components:
  - type: englishGreeter
    declarations: [A]
`
	_, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(doc), greeterCatalog()))
	var de *di.DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "meta-declaration cycle")
	assert.Equal(t, "beans.yaml:8", de.Source)
}

func TestYAMLDeclarationConflict(t *testing.T) {
	doc := `
declarations:
  Eager:
    attributes: {lazy: "false"}
  Deferred:
    attributes: {lazy: "true"}
components:
  - name: x
    type: englishGreeter
    declarations: [Eager, Deferred]
`
	_, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(doc), greeterCatalog()))
	var conflict *di.MetadataConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "x", conflict.Declaration)
	assert.Equal(t, AttrLazy, conflict.Attribute)
	assert.Equal(t, "beans.yaml:8", conflict.Source)
}

func TestYAMLDerivedNames(t *testing.T) {
	doc := `
components:
  - type: englishGreeter
  - type: englishGreeter
`
	registry, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(doc), greeterCatalog()))
	require.NoError(t, err)
	assert.Equal(t, []string{"englishGreeter", "englishGreeter#1"}, registry.Names())
}

func TestYAMLAliasShadowingDefinition(t *testing.T) {
	doc := `
components:
  - name: greeter
    type: englishGreeter
  - name: other
    type: englishGreeter
aliases:
  greeter: other
`
	_, err := NewResolver(nil).Resolve(FromYAML("beans.yaml", []byte(doc), greeterCatalog()))
	var de *di.DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "beans.yaml:8", de.Source)
	assert.Contains(t, de.Reason, "shadows a definition")
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components:\n  - name: greeter\n    type: englishGreeter\n"), 0o644))

	src, err := LoadYAML(path, greeterCatalog())
	require.NoError(t, err)
	registry, err := NewResolver(nil).Resolve(src)
	require.NoError(t, err)

	def, err := registry.Lookup("greeter")
	require.NoError(t, err)
	assert.Equal(t, "beans.yaml:2", def.Source)

	_, err = LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
