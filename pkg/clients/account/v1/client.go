package v1

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/clients/account"
	"github.com/nerdswords/yet-another-resource-enumerator/pkg/logging"
)

type client struct {
	logger    logging.Logger
	stsClient stsiface.STSAPI
	iamClient iamiface.IAMAPI
}

func NewClient(logger logging.Logger, stsClient stsiface.STSAPI, iamClient iamiface.IAMAPI) account.Client {
	return &client{
		logger:    logger,
		stsClient: stsClient,
		iamClient: iamClient,
	}
}

func (c client) GetAccount(ctx context.Context) (string, error) {
	result, err := c.stsClient.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	if result.Account == nil {
		return "", errors.New("aws sts GetCallerIdentityWithContext returned no account")
	}
	return *result.Account, nil
}

func (c client) GetAccountAlias(ctx context.Context) (string, error) {
	out, err := c.iamClient.ListAccountAliasesWithContext(ctx, &iam.ListAccountAliasesInput{})
	if err != nil {
		return "", err
	}
	// An account has at most one alias
	if len(out.AccountAliases) > 0 && out.AccountAliases[0] != nil {
		return *out.AccountAliases[0], nil
	}
	return "", nil
}
