package s3client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"modelfetch/internal/models"
	"modelfetch/pkg/utils"
)

// auxiliaryFiles are the well-known artifact filenames probed when the
// bucket cannot be enumerated.
var auxiliaryFiles = []string{
	"config.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
	"generation_config.json",
}

// fetchFallback is the degraded tier used when listing is denied: pull the
// weight index by exact key, then probe the union of well-known and
// index-referenced filenames one by one. Per-file failures are logged and
// skipped; only retrieving nothing at all is fatal.
func (c *Client) fetchFallback(ctx context.Context, destDir string, result *models.FetchResult) error {
	c.printf("\nWARNING: Access denied when listing bucket contents.\n")
	c.printf("Your IAM user may not have s3:ListBucket permission.\n\n")
	c.printf("Attempting to download common model files directly...\n")
	c.printf("(This requires s3:GetObject permission)\n\n")

	indexedFiles := c.fetchIndex(ctx, destDir, result)

	seen := make(map[string]bool)
	var filenames []string
	for _, name := range append(append([]string{}, auxiliaryFiles...), indexedFiles...) {
		if !seen[name] {
			seen[name] = true
			filenames = append(filenames, name)
		}
	}

	for _, filename := range filenames {
		key := ModelPrefix + filename

		head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			continue
		}
		size := aws.ToInt64(head.ContentLength)

		localPath, ok := localPathFor(destDir, filename)
		if !ok {
			continue
		}

		c.printf("Downloading: %s (%s)\n", filename, utils.FormatMiB(size))
		if err := c.downloadTo(ctx, key, localPath); err != nil {
			if IsAccessDenied(err) {
				c.printf("  [!] Access denied for: %s\n", filename)
			} else {
				c.printf("  [!] Error downloading %s: %v\n", filename, err)
			}
			continue
		}

		result.Items = append(result.Items, models.FetchItem{
			RemotePath: key,
			LocalPath:  localPath,
			Size:       size,
		})
		result.TotalFiles++
		result.TotalSizeBytes += size
	}

	if result.TotalFiles == 0 {
		return fmt.Errorf("could not download any files; required IAM permissions: "+
			"s3:ListBucket on arn:aws:s3:::%s and s3:GetObject on arn:aws:s3:::%s/%s*",
			Bucket, Bucket, ModelPrefix)
	}

	return nil
}

// fetchIndex downloads and parses the safetensors index if it is reachable,
// returning the deduplicated shard filenames from its weight_map. Any
// failure just means discovery proceeds with the well-known set alone.
func (c *Client) fetchIndex(ctx context.Context, destDir string, result *models.FetchResult) []string {
	key := ModelPrefix + indexFile

	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsAccessDenied(classify(err)) {
			c.printf("Access denied for index file, trying common files...\n")
		} else {
			c.printf("Index file not available, trying common files...\n")
		}
		return nil
	}
	size := aws.ToInt64(head.ContentLength)

	localPath := filepath.Join(destDir, indexFile)
	c.printf("Downloading index file: %s (%s)\n", indexFile, utils.FormatMiB(size))
	if err := c.downloadTo(ctx, key, localPath); err != nil {
		c.printf("  [!] Error downloading %s: %v\n", indexFile, err)
		return nil
	}

	result.Items = append(result.Items, models.FetchItem{
		RemotePath: key,
		LocalPath:  localPath,
		Size:       size,
	})
	result.TotalFiles++
	result.TotalSizeBytes += size

	filenames, err := parseWeightMap(localPath)
	if err != nil {
		c.printf("Could not parse index file: %v\n", err)
		return nil
	}
	c.printf("Found %d model files in index\n", len(filenames))

	return filenames
}

// parseWeightMap extracts the unique shard filenames referenced by the
// index's weight_map.
func parseWeightMap(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var index struct {
		WeightMap map[string]string `json:"weight_map"`
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var filenames []string
	for _, filename := range index.WeightMap {
		if !seen[filename] {
			seen[filename] = true
			filenames = append(filenames, filename)
		}
	}
	sort.Strings(filenames)

	return filenames, nil
}
