package awsutil

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// defaultRegion is used to discover the region of a bucket
var defaultRegion = "us-west-1"

func init() {
	if r := os.Getenv("AWS_REGION"); r != "" {
		defaultRegion = r
	}
}

// IsS3URI returns true if the path is an s3 uri.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ValidateURI parses an uri of the form s3://bucket-name/path/to/file
func ValidateURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("expected scheme s3, got %q in %s", u.Scheme, uri)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing bucket in %s", uri)
	}
	if strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("missing key in %s", uri)
	}
	return u, nil
}

// NewS3Reader returns a io.ReadCloser that will read the contents
// of the file pointed to by the uri. URI will be of the form
// s3://bucket-name/path/to/file
func NewS3Reader(uri string) (io.ReadCloser, error) {
	s3url, err := ValidateURI(uri)
	if err != nil {
		return nil, err
	}

	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}

	region, err := bucketRegion(sess, s3url.Host)
	if err != nil {
		return nil, fmt.Errorf("unable to determine region for %s: %v", uri, err)
	}

	client := s3.New(sess, aws.NewConfig().WithRegion(region))
	out, err := client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s3url.Host),
		Key:    aws.String(strings.TrimPrefix(s3url.Path, "/")),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting %s: %v", uri, err)
	}
	return out.Body, nil
}

func bucketRegion(sess *session.Session, bucket string) (string, error) {
	client := s3.New(sess, aws.NewConfig().WithRegion(defaultRegion))
	out, err := client.GetBucketLocation(&s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", err
	}
	// buckets in us-east-1 report an empty location constraint
	if out.LocationConstraint == nil || *out.LocationConstraint == "" {
		return "us-east-1", nil
	}
	return *out.LocationConstraint, nil
}
