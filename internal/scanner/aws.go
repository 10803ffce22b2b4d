package scanner

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"golang.org/x/time/rate"

	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
)

const (
	defaultRegion  = "us-east-1"
	apiCallTimeout = 30 * time.Second
)

// AWSClient implements CloudAPI against aws-sdk-go-v2. One client is
// shared by all workers; the limiter smooths API pressure across
// concurrent scans so a burst of accounts does not trip throttling.
type AWSClient struct {
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewAWSClient creates a rate-limited AWS client
func NewAWSClient(log *logger.Logger) *AWSClient {
	return &AWSClient{
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		log:     log.With("provider", "aws"),
	}
}

func (c *AWSClient) loadConfig(ctx context.Context, creds Credentials, region string) (aws.Config, error) {
	if region == "" {
		region = defaultRegion
	}
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")),
	)
}

// ListInstances fetches EC2 instances (running and stopped) and RDS
// database instances in the account's region.
func (c *AWSClient) ListInstances(ctx context.Context, creds Credentials) ([]Instance, error) {
	cfg, err := c.loadConfig(ctx, creds, creds.Region)
	if err != nil {
		return nil, classify("aws", err)
	}

	instances, err := c.listEC2(ctx, cfg)
	if err != nil {
		return nil, err
	}

	databases, err := c.listRDS(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return append(instances, databases...), nil
}

func (c *AWSClient) listEC2(ctx context.Context, cfg aws.Config) ([]Instance, error) {
	client := ec2.NewFromConfig(cfg)
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{resource.StateRunning, resource.StateStopped},
			},
		},
	})

	var out []Instance
	for paginator.HasMorePages() {
		page, err := c.nextEC2Page(ctx, paginator)
		if err != nil {
			return nil, classify("aws", err)
		}

		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				out = append(out, Instance{
					ID:           aws.ToString(inst.InstanceId),
					Name:         ec2Name(inst),
					Kind:         resource.TypeCompute,
					InstanceType: string(inst.InstanceType),
					Region:       cfg.Region,
					State:        ec2State(inst),
				})
			}
		}
	}
	return out, nil
}

func (c *AWSClient) nextEC2Page(ctx context.Context, p *ec2.DescribeInstancesPaginator) (*ec2.DescribeInstancesOutput, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	return p.NextPage(callCtx)
}

func (c *AWSClient) listRDS(ctx context.Context, cfg aws.Config) ([]Instance, error) {
	client := rds.NewFromConfig(cfg)
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})

	var out []Instance
	for paginator.HasMorePages() {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classify("aws", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
		page, err := paginator.NextPage(callCtx)
		cancel()
		if err != nil {
			return nil, classify("aws", err)
		}

		for _, db := range page.DBInstances {
			out = append(out, Instance{
				ID:           aws.ToString(db.DBInstanceIdentifier),
				Name:         aws.ToString(db.DBInstanceIdentifier),
				Kind:         resource.TypeDatabase,
				InstanceType: aws.ToString(db.DBInstanceClass),
				Region:       cfg.Region,
				State:        rdsState(aws.ToString(db.DBInstanceStatus)),
				Engine:       aws.ToString(db.Engine),
				MultiAZ:      aws.ToBool(db.MultiAZ),
				StorageGB:    int(aws.ToInt32(db.AllocatedStorage)),
			})
		}
	}
	return out, nil
}

// MonthToDateSpend fetches actual spend for the current month grouped
// by service and region. Cost Explorer is only served from us-east-1.
func (c *AWSClient) MonthToDateSpend(ctx context.Context, creds Credentials) (*Spend, error) {
	cfg, err := c.loadConfig(ctx, creds, defaultRegion)
	if err != nil {
		return nil, classify("aws", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify("aws", err)
	}

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 1)

	client := costexplorer.NewFromConfig(cfg)
	callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()

	result, err := client.GetCostAndUsage(callCtx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("REGION")},
		},
	})
	if err != nil {
		return nil, classify("aws", err)
	}

	spend := &Spend{
		ByService: make(map[string]float64),
		ByRegion:  make(map[string]float64),
	}
	for _, byTime := range result.ResultsByTime {
		for _, group := range byTime.Groups {
			metric, ok := group.Metrics["UnblendedCost"]
			if !ok || metric.Amount == nil {
				continue
			}
			amount, err := strconv.ParseFloat(*metric.Amount, 64)
			if err != nil || amount == 0 {
				continue
			}

			service, region := "other", "global"
			if len(group.Keys) > 0 && group.Keys[0] != "" {
				service = group.Keys[0]
			}
			if len(group.Keys) > 1 && group.Keys[1] != "" {
				region = group.Keys[1]
			}

			spend.Total += amount
			spend.ByService[service] += amount
			spend.ByRegion[region] += amount
		}
	}

	return spend, nil
}

func ec2Name(inst ec2types.Instance) string {
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" && tag.Value != nil {
			return *tag.Value
		}
	}
	return aws.ToString(inst.InstanceId)
}

func ec2State(inst ec2types.Instance) string {
	if inst.State == nil {
		return ""
	}
	return string(inst.State.Name)
}

// rdsState folds RDS status strings onto the shared state vocabulary.
// RDS reports "available" where EC2 says "running".
func rdsState(status string) string {
	switch status {
	case "available":
		return resource.StateAvailable
	case "stopped":
		return resource.StateStopped
	default:
		return status
	}
}
