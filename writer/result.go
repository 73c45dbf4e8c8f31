// Package writer persists run results: pretty-printed JSON under the local
// results directory and, when enabled, a parquet/JSON archive uploaded to S3
// under a hive-style key layout.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

// ResultWriter persists one RunResult per completed run.
type ResultWriter struct {
	cfg      appconfig.StorageConfig
	s3Client *s3.Client
	log      *logger.Entry
}

// NewResultWriter creates the results directory and, when S3 archiving is
// enabled, builds and validates the S3 client up front so credential problems
// surface at startup rather than after a long run.
func NewResultWriter(cfg appconfig.StorageConfig, log *logger.Log) (*ResultWriter, error) {
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}

	w := &ResultWriter{
		cfg: cfg,
		log: log.WithComponent("result_writer"),
	}

	if cfg.S3.Enabled {
		client, err := newS3Client(context.Background(), cfg.S3)
		if err != nil {
			return nil, err
		}
		w.s3Client = client
		w.log.WithFields(logger.Fields{
			"bucket":     cfg.S3.Bucket,
			"region":     cfg.S3.Region,
			"endpoint":   cfg.S3.Endpoint,
			"path_style": cfg.S3.PathStyle,
		}).Info("result archive enabled")
	}

	return w, nil
}

func newS3Client(ctx context.Context, cfg appconfig.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// Write persists the result as pretty JSON under the results directory and
// returns the file path. When archiving is enabled the JSON plus parquet
// encodings of the equity curve and trade log are uploaded as well; archive
// failures are logged but never fail the local write.
func (w *ResultWriter) Write(ctx context.Context, result *models.RunResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s_%s.json", result.Pair, result.Timeframe, result.Mode, result.RunID)
	path := filepath.Join(w.cfg.ResultsDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write result file: %w", err)
	}

	logger.IncrementResultWrite(int64(len(data)))
	w.log.WithFields(logger.Fields{
		"path":      path,
		"size":      len(data),
		"run_id":    result.RunID,
		"trades":    len(result.Trades),
		"decisions": len(result.Decisions),
	}).Info("run result written")

	if w.s3Client != nil {
		if err := w.archive(ctx, result, data); err != nil {
			w.log.WithError(err).WithFields(logger.Fields{
				"bucket": w.cfg.S3.Bucket,
				"run_id": result.RunID,
			}).Error("result archive upload failed")
		}
	}

	return path, nil
}

// archive uploads the JSON artifact plus parquet encodings of the equity
// curve and trade log.
func (w *ResultWriter) archive(ctx context.Context, result *models.RunResult, jsonData []byte) error {
	equityData, err := encodeEquityCurve(result.EquityCurve)
	if err != nil {
		return fmt.Errorf("encode equity curve: %w", err)
	}
	tradeData, err := encodeTradeLog(result.Trades)
	if err != nil {
		return fmt.Errorf("encode trade log: %w", err)
	}

	base := w.archivePrefix(result)
	uploads := []struct {
		key         string
		data        []byte
		contentType string
	}{
		{base + result.RunID + ".json", jsonData, "application/json"},
		{base + result.RunID + "_equity.parquet", equityData, "application/octet-stream"},
		{base + result.RunID + "_trades.parquet", tradeData, "application/octet-stream"},
	}

	// Finish in-flight uploads even while the run context is being torn down.
	ctx = context.WithoutCancel(ctx)
	for _, u := range uploads {
		if _, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(w.cfg.S3.Bucket),
			Key:         aws.String(u.key),
			Body:        bytes.NewReader(u.data),
			ContentType: aws.String(u.contentType),
		}); err != nil {
			return fmt.Errorf("upload %s: %w", u.key, err)
		}
		w.log.WithFields(logger.Fields{
			"key":  u.key,
			"size": len(u.data),
		}).Info("artifact uploaded")
	}

	return nil
}

// archivePrefix builds the hive-style key prefix a run's artifacts live
// under, e.g. "pair=BTCUSDT/timeframe=1h/mode=backtest/date=2024-03-01/".
func (w *ResultWriter) archivePrefix(result *models.RunResult) string {
	parts := []string{
		fmt.Sprintf("pair=%s", result.Pair),
		fmt.Sprintf("timeframe=%s", result.Timeframe),
		fmt.Sprintf("mode=%s", result.Mode),
		fmt.Sprintf("date=%s", result.StartDate.UTC().Format("2006-01-02")),
	}
	if prefix := strings.Trim(w.cfg.S3.Prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/") + "/"
}
