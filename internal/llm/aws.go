package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// AWSSettings is the subset of configuration needed to reach Bedrock.
type AWSSettings struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	EndpointOverride string
}

// NewBedrockClientFromSettings loads the AWS SDK configuration and returns a
// Bedrock-backed client. Static credentials are used only when both halves
// are set; otherwise the default provider chain applies.
func NewBedrockClientFromSettings(ctx context.Context, s AWSSettings) (*BedrockClient, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.Region)}
	if strings.TrimSpace(s.AccessKeyID) != "" && strings.TrimSpace(s.SecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("llm: load aws config: %w", err)
	}

	api := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if endpoint := strings.TrimSpace(s.EndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewBedrockClient(api), nil
}
