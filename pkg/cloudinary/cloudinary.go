package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether every credential is present.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Archive stores scanned essay pages on Cloudinary.
type Archive struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary backed archive.
func New(cfg Config, logger zerolog.Logger) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Archive{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores an image under the owner's folder and returns its secure URL.
func (a *Archive) Upload(ctx context.Context, owner, name string, reader io.Reader) (string, error) {
	folder := strings.Trim(a.folder, "/")
	if owner = PublicID(owner, ""); owner != "" {
		folder = strings.Trim(folder+"/"+owner, "/")
	}

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     PublicID(name, fmt.Sprintf("-%d", time.Now().Unix())),
		ResourceType: "image",
	}

	result, err := a.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload scan: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload scan: %s", result.Error.Message)
	}

	a.logger.Info().Str("public_id", result.PublicID).Msg("scan archived")
	return result.SecureURL, nil
}

// PublicID reduces name to a Cloudinary-safe identifier and appends suffix.
// An empty result stays empty so callers can decide on a fallback.
func PublicID(name, suffix string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		if suffix == "" {
			return ""
		}
		base = "scan"
	}
	return base + suffix
}
