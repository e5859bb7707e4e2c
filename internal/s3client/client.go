package s3client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appConfig "modelfetch/config"
	"modelfetch/internal/models"
	"modelfetch/pkg/utils"
)

const (
	Bucket      = "rfq-models"
	ModelPrefix = "Mistral-7B-Instruct-v0-3/"

	indexFile = "model.safetensors.index.json"
)

// S3API is the subset of the S3 client the fetch logic needs. Satisfied by
// *s3.Client; tests substitute a mock.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

type Client struct {
	api        S3API
	downloader *manager.Downloader
	out        io.Writer
}

func New(creds *appConfig.Credentials, endpoint string) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     creds.AccessKey,
				SecretAccessKey: creds.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if endpoint != "" {
		s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsCfg)
	}

	return newClient(s3Client, os.Stdout), nil
}

// NewWithAPI builds a client over an injected store API, for tests.
func NewWithAPI(api S3API, out io.Writer) *Client {
	return newClient(api, out)
}

func newClient(api S3API, out io.Writer) *Client {
	// One object at a time; the tool is strictly sequential.
	downloader := manager.NewDownloader(api, func(d *manager.Downloader) {
		d.Concurrency = 1
	})
	return &Client{api: api, downloader: downloader, out: out}
}

// FetchModel populates destDir with every eligible object under the model
// prefix. When listing is denied it degrades to fetching well-known files by
// exact key. Returns the accumulated file count and byte total.
func (c *Client) FetchModel(ctx context.Context, destDir string) (*models.FetchResult, error) {
	startTime := time.Now()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	result := &models.FetchResult{
		Bucket:      Bucket,
		Prefix:      ModelPrefix,
		Destination: destDir,
	}

	err := c.fetchByListing(ctx, destDir, result)
	if err != nil {
		if !IsAccessDenied(err) {
			return nil, err
		}
		result.Fallback = true
		if err := c.fetchFallback(ctx, destDir, result); err != nil {
			return nil, err
		}
	}

	if result.TotalFiles == 0 {
		return nil, fmt.Errorf("no files found in S3 bucket: check bucket name and prefix")
	}

	result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)
	result.OperationTime = utils.FormatTime(startTime)
	result.FetchDuration = time.Since(startTime).String()

	return result, nil
}

// fetchByListing is the primary tier: page through the prefix listing and
// download every eligible key.
func (c *Client) fetchByListing(ctx context.Context, destDir string, result *models.FetchResult) error {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(Bucket),
		Prefix: aws.String(ModelPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if classified := classify(err); IsAccessDenied(classified) {
				return classified
			}
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			size := aws.ToInt64(obj.Size)

			if skippable(key) {
				continue
			}

			relative := strings.TrimPrefix(key, ModelPrefix)
			localPath, ok := localPathFor(destDir, relative)
			if !ok {
				slog.Warn("Skipping object with unsafe path", "key", key)
				continue
			}

			c.printf("Downloading: %s (%s)\n", relative, utils.FormatMiB(size))
			if err := c.downloadTo(ctx, key, localPath); err != nil {
				return fmt.Errorf("failed to download %s: %w", key, err)
			}

			result.Items = append(result.Items, models.FetchItem{
				RemotePath: key,
				LocalPath:  localPath,
				Size:       size,
			})
			result.TotalFiles++
			result.TotalSizeBytes += size
		}
	}

	return nil
}

// CheckAccess probes which retrieval tier the caller's permissions allow,
// without downloading anything.
func (c *Client) CheckAccess(ctx context.Context) (*models.CheckResult, error) {
	result := &models.CheckResult{
		Bucket:        Bucket,
		Prefix:        ModelPrefix,
		ProbedKey:     ModelPrefix + indexFile,
		OperationTime: utils.FormatTime(time.Now()),
	}

	_, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(Bucket),
		Prefix:  aws.String(ModelPrefix),
		MaxKeys: aws.Int32(1),
	})
	switch {
	case err == nil:
		result.ListAllowed = true
	case IsAccessDenied(classify(err)):
		result.ListAllowed = false
	default:
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	_, err = c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(Bucket),
		Key:    aws.String(result.ProbedKey),
	})
	err = classify(err)
	switch {
	case err == nil, IsNotFound(err):
		// NotFound still proves the caller may issue object requests.
		result.ObjectAccess = true
	case IsAccessDenied(err):
		result.ObjectAccess = false
	default:
		return nil, fmt.Errorf("failed to probe object: %w", err)
	}

	return result, nil
}

// skippable reports whether a listed key is administrative noise rather than
// part of the artifact set.
func skippable(key string) bool {
	if strings.HasSuffix(key, "/") {
		return true
	}
	if strings.Contains(key, ".cache") {
		return true
	}
	return strings.HasSuffix(key, ".lock") || strings.HasSuffix(key, ".metadata")
}

// localPathFor joins a prefix-stripped key to the destination, rejecting
// anything that would resolve outside it.
func localPathFor(destDir, relative string) (string, bool) {
	relative = filepath.FromSlash(relative)
	if relative == "" || !filepath.IsLocal(relative) {
		return "", false
	}
	return filepath.Join(destDir, relative), true
}

func (c *Client) downloadTo(ctx context.Context, key, localPath string) error {
	if dir := filepath.Dir(localPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = c.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(err)
	}

	return nil
}

func (c *Client) printf(format string, args ...any) {
	if c.out == nil {
		return
	}
	fmt.Fprintf(c.out, format, args...)
}
