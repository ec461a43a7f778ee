// Package archival implements the Archival Sink: best-effort upload of a
// finished run's output CSV and wallet snapshot to S3, grounded in the
// teacher's lode S3 client and gurre-ddb-pitr's checkpoint.S3Store for the
// URI-to-client wiring.
package archival

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/pithecus-labs/creditrunner/wallet"
)

// Sink uploads a run's terminal artifacts to S3. A nil *Sink is valid and
// every method becomes a no-op, so callers can construct one unconditionally
// from an optional config field.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// New parses an "s3://bucket/prefix" URI and resolves AWS credentials via
// the default chain (env vars, shared config, IAM role), exactly as the
// teacher's lode S3 client does.
func New(ctx context.Context, uri string) (*Sink, error) {
	if uri == "" {
		return nil, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("archival: invalid S3 URI %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("archival: unsupported URI scheme %q, want s3", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("archival: S3 URI %q is missing a bucket", uri)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("archival: load AWS config: %w", err)
	}

	return &Sink{
		client: s3.NewFromConfig(awsCfg),
		bucket: u.Host,
		prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// walletArchive is the JSON shape written to wallet.json: the aggregate
// snapshot plus per-credential detail, mirroring the persisted file's
// fields but scoped to one run's archive.
type walletArchive struct {
	wallet.Snapshot
	Credentials []wallet.CredentialSummary `json:"credentials"`
}

// UploadRun uploads outputPath as output.csv and a wallet snapshot as
// wallet.json, both under runId/ in the configured prefix. Errors are
// returned for the caller to log at warn; neither upload is retried and
// neither ever contributes to the run's exit code.
func (s *Sink) UploadRun(ctx context.Context, runID, outputPath string, w *wallet.Wallet) error {
	if s == nil {
		return nil
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return fmt.Errorf("archival: read output csv: %w", err)
	}
	if err := s.put(ctx, s.key(runID, "output.csv"), data); err != nil {
		return fmt.Errorf("archival: upload output csv: %w", err)
	}

	archive := walletArchive{Snapshot: w.Snapshot(), Credentials: w.CredentialSummaries()}
	walletJSON, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("archival: marshal wallet snapshot: %w", err)
	}
	if err := s.put(ctx, s.key(runID, "wallet.json"), walletJSON); err != nil {
		return fmt.Errorf("archival: upload wallet snapshot: %w", err)
	}

	return nil
}

func (s *Sink) key(runID, name string) string {
	if s.prefix == "" {
		return runID + "/" + name
	}
	return s.prefix + "/" + runID + "/" + name
}

func (s *Sink) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	return err
}
