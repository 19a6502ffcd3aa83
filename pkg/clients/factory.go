package clients

import (
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/children"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/tagging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/config"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// Factory is an interface to abstract away all logic required to produce the different
// YARE specific clients which wrap AWS clients
type Factory interface {
	GetChildClient(region string, role model.Role, family config.FamilyConfig, concurrencyLimit int) children.Client
	GetTaggingClient(region string, role model.Role, concurrencyLimit int) tagging.Client
	GetAccountClient(region string, role model.Role) account.Client
}

// CachingFactory is a Factory keeping the clients of every role and region
// configured by the jobs. For jobs with many duplicate roles, this provides
// relief to the AWS API and prevents timeouts by excessive credential requesting.
type CachingFactory interface {
	Factory

	// Refresh creates all clients, after which they can be read without locking.
	Refresh()
	// Clear drops all clients so they get recreated with fresh credentials.
	Clear()
}
