// Package aws reads spot capacity signals from Amazon EC2 and toggles the
// EventBridge rule that schedules new runs.
package aws

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/provider"
)

const defaultProductDescription = "Linux/UNIX"

// EC2API is the subset of the EC2 client the market uses.
type EC2API interface {
	GetSpotPlacementScores(ctx context.Context, params *ec2.GetSpotPlacementScoresInput, optFns ...func(*ec2.Options)) (*ec2.GetSpotPlacementScoresOutput, error)
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// Config holds configuration for the AWS market.
type Config struct {
	// Region is the home region API calls are made from. Price history is
	// always queried in the region it describes.
	Region string
	// ProductDescription filters spot price history. Default "Linux/UNIX".
	ProductDescription string
	Clock              clock.Clock
}

// Market implements provider.Market on top of EC2 spot placement scores and
// spot price history.
type Market struct {
	client             EC2API
	productDescription string
	clock              clock.Clock
}

var (
	_ provider.Market       = (*Market)(nil)
	_ provider.RegionLister = (*Market)(nil)
)

// LoadConfig loads the default AWS SDK configuration for region. An empty
// region defers to the environment.
func LoadConfig(ctx context.Context, region string) (awssdk.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// New creates a market backed by a real EC2 client.
func New(awsCfg awssdk.Config, cfg Config) *Market {
	return NewWithClient(cfg, ec2.NewFromConfig(awsCfg))
}

// NewWithClient creates a market with an injected EC2 client.
func NewWithClient(cfg Config, client EC2API) *Market {
	if cfg.ProductDescription == "" {
		cfg.ProductDescription = defaultProductDescription
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Market{
		client:             client,
		productDescription: cfg.ProductDescription,
		clock:              cfg.Clock,
	}
}

func (m *Market) Name() string {
	return "aws"
}

// Scores requests spot placement scores for all regions in one paginated
// call. When EC2 returns several scores for a region the highest is kept.
func (m *Market) Scores(ctx context.Context, resourceType string, regions []string, capacity int) ([]provider.CapacityScore, error) {
	if len(regions) == 0 {
		return nil, nil
	}

	input := &ec2.GetSpotPlacementScoresInput{
		InstanceTypes:          []string{resourceType},
		TargetCapacity:         awssdk.Int32(int32(capacity)),
		TargetCapacityUnitType: types.TargetCapacityUnitTypeUnits,
		RegionNames:            regions,
		SingleAvailabilityZone: awssdk.Bool(false),
	}

	best := make(map[string]int)
	for {
		out, err := m.client.GetSpotPlacementScores(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("get spot placement scores: %w", err)
		}
		for _, s := range out.SpotPlacementScores {
			region := awssdk.ToString(s.Region)
			if region == "" {
				continue
			}
			score := int(awssdk.ToInt32(s.Score))
			if prev, ok := best[region]; !ok || score > prev {
				best[region] = score
			}
		}
		if awssdk.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	now := m.clock.Now()
	result := make([]provider.CapacityScore, 0, len(best))
	for region, score := range best {
		result = append(result, provider.CapacityScore{Region: region, Score: score, AsOf: now})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Region < result[j].Region })
	return result, nil
}

// History returns spot prices observed in region during the trailing window
// across all of the region's availability zones.
func (m *Market) History(ctx context.Context, resourceType, region string, window time.Duration) ([]provider.PriceQuote, error) {
	end := m.clock.Now()
	input := &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []types.InstanceType{types.InstanceType(resourceType)},
		ProductDescriptions: []string{m.productDescription},
		StartTime:           awssdk.Time(end.Add(-window)),
		EndTime:             awssdk.Time(end),
	}
	inRegion := func(o *ec2.Options) { o.Region = region }

	var quotes []provider.PriceQuote
	for {
		out, err := m.client.DescribeSpotPriceHistory(ctx, input, inRegion)
		if err != nil {
			return nil, fmt.Errorf("describe spot price history in %s: %w", region, err)
		}
		for _, sp := range out.SpotPriceHistory {
			price, err := strconv.ParseFloat(awssdk.ToString(sp.SpotPrice), 64)
			if err != nil {
				return nil, fmt.Errorf("parse spot price %q in %s: %w", awssdk.ToString(sp.SpotPrice), region, err)
			}
			quotes = append(quotes, provider.PriceQuote{
				Region:     region,
				Price:      price,
				ObservedAt: awssdk.ToTime(sp.Timestamp),
			})
		}
		if awssdk.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	return quotes, nil
}

// ListRegions returns the regions enabled for the account, sorted.
func (m *Market) ListRegions(ctx context.Context) ([]string, error) {
	out, err := m.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}
	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := awssdk.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	sort.Strings(regions)
	return regions, nil
}
