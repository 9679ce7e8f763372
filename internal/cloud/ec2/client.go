// Package ec2 implements cloud.Driver against an EC2-compatible API,
// including non-AWS deployments (OpenStack EC2 compat, Eucalyptus) reachable
// through a configurable endpoint URL.
package ec2

import (
	"context"
	"encoding/base64"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/cernops/elastiq/internal/cloud"
)

func init() {
	cloud.Register("ec2", New)
}

// Driver implements cloud.Driver on top of the AWS SDK v2 EC2 client,
// pointed at whatever api_url the operator configured.
type Driver struct {
	client  *ec2.Client
	imageID string
	keyName string
	flavour string
}

// New builds a Driver from the ec2.* option keys api_url,
// aws_access_key_id, aws_secret_access_key, image_id, key_name and flavour.
// api_version and user_data_b64 are not read: user data reaches the driver
// per launch, through cloud.LaunchSpec.
func New(ctx context.Context, options map[string]string) (cloud.Driver, error) {
	apiURL := options["api_url"]
	accessKey := options["aws_access_key_id"]
	secretKey := options["aws_secret_access_key"]

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("ec2: load sdk config: %w", err)
	}

	client := ec2.NewFromConfig(cfg, func(o *ec2.Options) {
		if apiURL != "" {
			o.BaseEndpoint = awssdk.String(apiURL)
		}
	})

	return &Driver{
		client:  client,
		imageID: options["image_id"],
		keyName: options["key_name"],
		flavour: options["flavour"],
	}, nil
}

// ListRunning enumerates running instances, flattening reservations, and
// filtering by private IPv4 when filterIPs is non-nil.
func (d *Driver) ListRunning(ctx context.Context, filterIPs map[string]struct{}) ([]cloud.Instance, error) {
	out, err := d.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
	if err != nil {
		return nil, fmt.Errorf("%w: describe instances: %v", cloud.ErrTransient, err)
	}

	var result []cloud.Instance
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.State == nil || inst.State.Name != types.InstanceStateNameRunning {
				continue
			}

			ip := awssdk.ToString(inst.PrivateIpAddress)
			if filterIPs != nil {
				if _, ok := filterIPs[ip]; !ok {
					continue
				}
			}

			result = append(result, cloud.Instance{
				ID:          awssdk.ToString(inst.InstanceId),
				PrivateIPv4: ip,
				State:       cloud.InstanceRunning,
			})
		}
	}
	return result, nil
}

// Launch requests a single new instance from the configured image.
func (d *Driver) Launch(ctx context.Context, spec cloud.LaunchSpec) (cloud.Instance, error) {
	var userData *string
	if len(spec.UserData) > 0 {
		encoded := base64.StdEncoding.EncodeToString(spec.UserData)
		userData = &encoded
	}

	in := &ec2.RunInstancesInput{
		ImageId: awssdk.String(spec.ImageID),
		// ClientToken makes the request safe to retry: if a prior attempt
		// actually launched but the response was lost to a transient
		// network error, the retry is deduplicated by the API instead of
		// booting a second VM.
		ClientToken: awssdk.String(uuid.NewString()),
		MinCount:    awssdk.Int32(1),
		MaxCount:    awssdk.Int32(1),
		UserData:    userData,
	}
	if spec.KeyName != "" {
		in.KeyName = awssdk.String(spec.KeyName)
	}
	if spec.Flavour != "" {
		in.InstanceType = types.InstanceType(spec.Flavour)
	}

	out, err := d.client.RunInstances(ctx, in)
	if err != nil || len(out.Instances) == 0 {
		return cloud.Instance{}, fmt.Errorf("%w: run instances: %v", cloud.ErrTransient, err)
	}

	inst := out.Instances[0]
	return cloud.Instance{
		ID:          awssdk.ToString(inst.InstanceId),
		PrivateIPv4: awssdk.ToString(inst.PrivateIpAddress),
		State:       cloud.InstanceRunning,
	}, nil
}

// Terminate requests termination of inst.
func (d *Driver) Terminate(ctx context.Context, inst cloud.Instance) error {
	_, err := d.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{inst.ID},
	})
	if err != nil {
		return fmt.Errorf("%w: terminate instances: %v", cloud.ErrTransient, err)
	}
	return nil
}
