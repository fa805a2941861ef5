package mongoutil

import (
	"context"

	"ChatCore/tools/errs"
)

// Check opens a throwaway connection and pings it.
func Check(ctx context.Context, config *Config) error {
	c, err := NewMongoDB(ctx, config)
	if err != nil {
		return err
	}
	defer func() { _ = c.Disconnect(ctx) }()

	if err := c.cli.Ping(ctx, nil); err != nil {
		return errs.WrapMsg(err, "MongoDB ping failed", "database", config.Database, "maxPoolSize", config.MaxPoolSize)
	}
	return nil
}

// ValidateAndSetDefaults validates the configuration and sets default values.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.ErrInvalidArgument.WrapMsg("either uri or address must be provided")
	}
	if c.Database == "" {
		return errs.ErrInvalidArgument.WrapMsg("database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		// authSource defaults to the database
		if c.AuthSource == "" {
			c.Uri = buildMongoURI(c, c.Database)
		} else {
			c.Uri = buildMongoURI(c, c.AuthSource)
		}
	}
	return nil
}
