// Command newsfn is the Lambda news ingestor. Each invocation writes one
// static JSON news document to the bucket; there is no batching and no
// state.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type response struct {
	Status string `json:"status"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type ingestor struct {
	client *s3.Client
	bucket string
	source string
	now    func() time.Time
}

func buildKey(source string, ts time.Time) string {
	return fmt.Sprintf("Ext/%s/%04d/%02d/%02d/news-%02d%02d%02d.json",
		source, ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
}

func (i *ingestor) handle(ctx context.Context, event json.RawMessage) (response, error) {
	now := i.now().UTC()
	key := buildKey(i.source, now)
	payload := map[string]any{
		"title":       now.Format(time.RFC3339) + "-News",
		"body":        now.Format(time.RFC3339) + "-News",
		"source":      i.source,
		"ingested_at": now.Format(time.RFC3339),
		"event":       event,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return response{}, fmt.Errorf("marshal payload: %w", err)
	}
	_, err = i.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(i.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return response{}, fmt.Errorf("put %s: %w", key, err)
	}
	return response{Status: "ok", Bucket: i.bucket, Key: key}, nil
}

func main() {
	bucket := os.Getenv("BUCKET_NAME")
	if bucket == "" {
		fmt.Fprintln(os.Stderr, "BUCKET_NAME environment variable is required")
		os.Exit(1)
	}
	source := os.Getenv("NEWS_DATA_SOURCE")
	if source == "" {
		source = "TEST"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load AWS config: %v\n", err)
		os.Exit(1)
	}

	i := &ingestor{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		source: source,
		now:    time.Now,
	}
	lambda.Start(i.handle)
}
