package v2

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/promutil"
)

// STSAPI is the subset of the STS client resolving the account id.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IAMAPI is the subset of the IAM client resolving the account alias.
type IAMAPI interface {
	ListAccountAliases(ctx context.Context, params *iam.ListAccountAliasesInput, optFns ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error)
}

var errNoAccount = errors.New("no account returned")

type client struct {
	logger    logging.Logger
	stsClient STSAPI
	iamClient IAMAPI
}

func NewClient(logger logging.Logger, stsClient STSAPI, iamClient IAMAPI) account.Client {
	return &client{
		logger:    logger,
		stsClient: stsClient,
		iamClient: iamClient,
	}
}

func (c client) GetAccount(ctx context.Context) (string, error) {
	result, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	countCall("GetCallerIdentity", err)
	if err != nil {
		return "", &model.RemoteCallError{Op: "GetCallerIdentity", Err: err}
	}
	if result.Account == nil || *result.Account == "" {
		return "", &model.RemoteCallError{Op: "GetCallerIdentity", Err: errNoAccount}
	}
	return *result.Account, nil
}

func (c client) GetAccountAlias(ctx context.Context) (string, error) {
	out, err := c.iamClient.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{})
	countCall("ListAccountAliases", err)
	if err != nil {
		return "", &model.RemoteCallError{Op: "ListAccountAliases", Err: err}
	}

	// An account has at most one alias
	if len(out.AccountAliases) == 0 {
		c.logger.Debug("Account has no alias")
		return "", nil
	}
	return out.AccountAliases[0], nil
}

func countCall(api string, err error) {
	promutil.APIRequestsCounter.WithLabelValues(api).Inc()
	if err != nil {
		promutil.APIRequestErrorsCounter.WithLabelValues(api).Inc()
	}
}
