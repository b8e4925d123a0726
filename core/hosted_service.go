package core

import "github.com/gocrud/ioc/hosting"

// HostedService 托管服务，见 hosting.HostedService
type HostedService = hosting.HostedService
