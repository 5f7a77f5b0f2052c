package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// CloudWatchLogsAPI is the subset of the CloudWatch Logs client LogShipper uses.
type CloudWatchLogsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, params *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// LogShipping says where a service's logs land.
type LogShipping struct {
	// Group defaults to /agrova/<service>.
	Group string
	// RetentionDays must be one of the periods CloudWatch accepts. Zero
	// leaves the group's retention untouched.
	RetentionDays int32
}

// Retention periods CloudWatch Logs accepts, in days.
var validRetentionDays = map[int32]bool{
	1: true, 3: true, 5: true, 7: true, 14: true, 30: true, 60: true, 90: true,
	120: true, 150: true, 180: true, 365: true, 400: true, 545: true, 731: true,
	1096: true, 1827: true, 2192: true, 2557: true, 2922: true, 3288: true, 3653: true,
}

// LogShipper sends each log line as one event to a stream owned by this
// process. It implements io.Writer so the zap logger can tee into it.
type LogShipper struct {
	mu     sync.Mutex
	client CloudWatchLogsAPI
	group  string
	stream string
	now    func() time.Time
}

// NewLogShipper prepares the group and this process's stream.
func NewLogShipper(ctx context.Context, cfg aws.Config, service string, opts LogShipping) (*LogShipper, error) {
	return NewLogShipperWithClient(ctx, cloudwatchlogs.NewFromConfig(cfg), service, opts)
}

// NewLogShipperWithClient is NewLogShipper over an existing client.
func NewLogShipperWithClient(ctx context.Context, client CloudWatchLogsAPI, service string, opts LogShipping) (*LogShipper, error) {
	if opts.RetentionDays != 0 && !validRetentionDays[opts.RetentionDays] {
		return nil, fmt.Errorf("unsupported log retention of %d days", opts.RetentionDays)
	}
	group := opts.Group
	if group == "" {
		group = "/agrova/" + service
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "local"
	}

	s := &LogShipper{
		client: client,
		group:  group,
		stream: fmt.Sprintf("%s/%s/%d-%d", service, host, os.Getpid(), time.Now().Unix()),
		now:    time.Now,
	}
	if err := s.ensureGroup(ctx, opts.RetentionDays); err != nil {
		return nil, fmt.Errorf("failed to prepare log group %s: %w", group, err)
	}
	if _, err := client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(s.stream),
	}); err != nil {
		return nil, fmt.Errorf("failed to create log stream: %w", err)
	}
	return s, nil
}

func (s *LogShipper) ensureGroup(ctx context.Context, retentionDays int32) error {
	_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(s.group),
	})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return err
	}
	if retentionDays == 0 {
		return nil
	}
	if _, err := s.client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(s.group),
		RetentionInDays: aws.Int32(retentionDays),
	}); err != nil {
		return fmt.Errorf("failed to set retention policy: %w", err)
	}
	return nil
}

// Write ships one encoded zap entry. A failed put goes to stderr; the
// caller that logged is never failed for it.
func (s *LogShipper) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg == "" {
		return len(p), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	_, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
		LogEvents: []types.InputLogEvent{{
			Message:   aws.String(msg),
			Timestamp: aws.Int64(s.now().UnixMilli()),
		}},
	})
	s.mu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cloudwatch logs: %s/%s: %v\n", s.group, s.stream, err)
	}
	return len(p), nil
}

// Stream is the name of this process's log stream.
func (s *LogShipper) Stream() string {
	return s.stream
}
