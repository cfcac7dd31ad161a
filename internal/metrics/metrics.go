// Package metrics emits custom CloudWatch counters.
package metrics

import (
	"context"
	"log"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/stablepay/go-commerce-gateway/internal/aws"
)

const namespace = "CommerceGateway"

// Emitter publishes counters under the gateway namespace. A nil Emitter is
// a no-op.
type Emitter struct {
	client aws.CloudWatchAPI
}

// NewEmitter returns an Emitter, or nil when client is nil.
func NewEmitter(client aws.CloudWatchAPI) *Emitter {
	if client == nil {
		return nil
	}
	return &Emitter{client: client}
}

// Count adds 1 to the named metric. Dimensions alternate name, value.
// Emission failures are logged and swallowed; metrics never fail a request.
func (e *Emitter) Count(ctx context.Context, name string, dims ...string) {
	if e == nil {
		return
	}
	var dd []cwtypes.Dimension
	for i := 0; i+1 < len(dims); i += 2 {
		dd = append(dd, cwtypes.Dimension{
			Name:  awssdk.String(dims[i]),
			Value: awssdk.String(dims[i+1]),
		})
	}
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awssdk.String(namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awssdk.String(name),
			Timestamp:  awssdk.Time(time.Now().UTC()),
			Unit:       cwtypes.StandardUnitCount,
			Value:      awssdk.Float64(1),
			Dimensions: dd,
		}},
	})
	if err != nil {
		log.Printf("[metrics] put %s: %v", name, err)
	}
}
