package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/creditsales-ai-platform/internal/archive"
	appconfig "github.com/wolfman30/creditsales-ai-platform/internal/config"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// BuildSessionArchive returns the S3 session archive, or nil when no bucket
// is configured.
func BuildSessionArchive(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *archive.Store {
	if cfg.SessionArchiveBucket == "" {
		return nil
	}
	// LocalStack serves buckets by path, not by virtual host.
	pathStyle := cfg.AWSEndpointOverride != ""
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	})
	logger.Info("session archive enabled", "bucket", cfg.SessionArchiveBucket)
	return archive.NewStore(client, cfg.SessionArchiveBucket, logger)
}
