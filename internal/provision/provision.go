// Package provision creates and deletes the Redshift cluster dwhetl loads
// into, along with the IAM role the cluster uses to read from S3.
//
// Conditions that mean the work is already done (role or cluster exists,
// ingress rule present, nothing left to delete) are logged and tolerated.
// Every other AWS error aborts.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	rstypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/leapstack-labs/dwhetl/internal/cloud"
	"github.com/leapstack-labs/dwhetl/internal/config"
)

// S3ReadOnlyPolicyARN is the managed policy attached to the cluster role.
const S3ReadOnlyPolicyARN = "arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"

// AWS error codes treated as "already done".
const (
	codeEntityExists    = "EntityAlreadyExists"
	codeNoSuchEntity    = "NoSuchEntity"
	codeClusterExists   = "ClusterAlreadyExists"
	codeClusterNotFound = "ClusterNotFound"
	codeDuplicateRule   = "InvalidPermission.Duplicate"
)

const defaultWaitTimeout = 30 * time.Minute

// ClusterSpec describes the cluster and role to manage.
type ClusterSpec struct {
	Identifier     string
	ClusterType    string
	NodeType       string
	NumNodes       int
	DBName         string
	MasterUser     string
	MasterPassword string
	Port           int
	RoleName       string
	IngressCIDR    string
	WaitTimeout    time.Duration
}

// SpecFromConfig builds a ClusterSpec from loaded configuration.
func SpecFromConfig(cfg *config.Config) ClusterSpec {
	spec := ClusterSpec{
		Identifier:  cfg.Cluster.Identifier,
		ClusterType: cfg.Cluster.Type,
		NodeType:    cfg.Cluster.NodeType,
		NumNodes:    cfg.Cluster.NumNodes,
		RoleName:    cfg.Cluster.IAMRoleName,
		IngressCIDR: cfg.Cluster.IngressCIDR,
		WaitTimeout: cfg.Cluster.WaitTimeout,
	}
	if t := cfg.Target; t != nil {
		spec.DBName = t.Database
		spec.MasterUser = t.User
		spec.MasterPassword = t.Password
		spec.Port = t.Port
	}
	return spec
}

// Result describes a provisioned cluster.
type Result struct {
	RoleARN         string
	Endpoint        string
	Port            int
	VpcID           string
	SecurityGroupID string
	Status          string
}

// Provisioner manages the cluster lifecycle.
type Provisioner struct {
	iam      IAMAPI
	redshift RedshiftAPI
	ec2      EC2API
	logger   *slog.Logger

	// PollInterval overrides the waiters' delay between status checks.
	PollInterval time.Duration
}

// New creates a Provisioner. If logger is nil, a discard logger is used.
func New(clients Clients, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provisioner{
		iam:      clients.IAM,
		redshift: clients.Redshift,
		ec2:      clients.EC2,
		logger:   logger,
	}
}

// Provision creates the role and the cluster, waits for the cluster to become
// available and opens its port on the VPC's default security group.
func (p *Provisioner) Provision(ctx context.Context, spec ClusterSpec) (*Result, error) {
	roleARN, err := p.ensureRole(ctx, spec.RoleName)
	if err != nil {
		return nil, err
	}

	if err := p.createCluster(ctx, spec, roleARN); err != nil {
		return nil, err
	}

	p.logger.Info("waiting for cluster to become available",
		"cluster", spec.Identifier,
		"timeout", waitTimeout(spec))
	waiter := redshift.NewClusterAvailableWaiter(p.redshift, func(o *redshift.ClusterAvailableWaiterOptions) {
		if p.PollInterval > 0 {
			o.MinDelay, o.MaxDelay = p.PollInterval, p.PollInterval
		}
	})
	if err := waiter.Wait(ctx, &redshift.DescribeClustersInput{
		ClusterIdentifier: aws.String(spec.Identifier),
	}, waitTimeout(spec)); err != nil {
		return nil, fmt.Errorf("cluster %s did not become available: %w", spec.Identifier, err)
	}

	cluster, err := p.describe(ctx, spec.Identifier)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RoleARN: roleARN,
		VpcID:   aws.ToString(cluster.VpcId),
		Status:  aws.ToString(cluster.ClusterStatus),
	}
	if cluster.Endpoint != nil {
		res.Endpoint = aws.ToString(cluster.Endpoint.Address)
		res.Port = int(aws.ToInt32(cluster.Endpoint.Port))
	}
	if res.Port == 0 {
		res.Port = spec.Port
	}

	sgID, err := p.openIngress(ctx, res.VpcID, spec.IngressCIDR, res.Port)
	if err != nil {
		return nil, err
	}
	res.SecurityGroupID = sgID

	p.logger.Info("cluster ready",
		"cluster", spec.Identifier,
		"endpoint", res.Endpoint,
		"role_arn", res.RoleARN)
	return res, nil
}

// Teardown deletes the cluster without a final snapshot, waits for it to go
// away, then detaches the policy and deletes the role.
func (p *Provisioner) Teardown(ctx context.Context, spec ClusterSpec) error {
	p.logger.Info("deleting cluster", "cluster", spec.Identifier)
	_, err := p.redshift.DeleteCluster(ctx, &redshift.DeleteClusterInput{
		ClusterIdentifier:        aws.String(spec.Identifier),
		SkipFinalClusterSnapshot: aws.Bool(true),
	})
	switch {
	case cloud.IsErrorCode(err, codeClusterNotFound):
		p.logger.Warn("cluster not found; nothing to delete", "cluster", spec.Identifier)
	case err != nil:
		return fmt.Errorf("failed to delete cluster %s: %w", spec.Identifier, err)
	default:
		waiter := redshift.NewClusterDeletedWaiter(p.redshift, func(o *redshift.ClusterDeletedWaiterOptions) {
			if p.PollInterval > 0 {
				o.MinDelay, o.MaxDelay = p.PollInterval, p.PollInterval
			}
		})
		if err := waiter.Wait(ctx, &redshift.DescribeClustersInput{
			ClusterIdentifier: aws.String(spec.Identifier),
		}, waitTimeout(spec)); err != nil {
			return fmt.Errorf("cluster %s was not deleted: %w", spec.Identifier, err)
		}
		p.logger.Info("cluster deleted", "cluster", spec.Identifier)
	}

	_, err = p.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(spec.RoleName),
		PolicyArn: aws.String(S3ReadOnlyPolicyARN),
	})
	if err != nil && !cloud.IsErrorCode(err, codeNoSuchEntity) {
		return fmt.Errorf("failed to detach policy from role %s: %w", spec.RoleName, err)
	}

	_, err = p.iam.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(spec.RoleName)})
	switch {
	case cloud.IsErrorCode(err, codeNoSuchEntity):
		p.logger.Warn("role not found; nothing to delete", "role", spec.RoleName)
	case err != nil:
		return fmt.Errorf("failed to delete role %s: %w", spec.RoleName, err)
	default:
		p.logger.Info("role deleted", "role", spec.RoleName)
	}
	return nil
}

// Describe reports the cluster's current status and endpoint.
func (p *Provisioner) Describe(ctx context.Context, identifier string) (*Result, error) {
	cluster, err := p.describe(ctx, identifier)
	if err != nil {
		return nil, err
	}
	res := &Result{
		VpcID:  aws.ToString(cluster.VpcId),
		Status: aws.ToString(cluster.ClusterStatus),
	}
	if cluster.Endpoint != nil {
		res.Endpoint = aws.ToString(cluster.Endpoint.Address)
		res.Port = int(aws.ToInt32(cluster.Endpoint.Port))
	}
	if len(cluster.IamRoles) > 0 {
		res.RoleARN = aws.ToString(cluster.IamRoles[0].IamRoleArn)
	}
	return res, nil
}

func (p *Provisioner) ensureRole(ctx context.Context, name string) (string, error) {
	p.logger.Info("creating IAM role", "role", name)
	_, err := p.iam.CreateRole(ctx, &iam.CreateRoleInput{
		Path:                     aws.String("/"),
		RoleName:                 aws.String(name),
		Description:              aws.String("Allows Redshift clusters to call AWS services on your behalf."),
		AssumeRolePolicyDocument: aws.String(trustPolicy()),
	})
	switch {
	case cloud.IsErrorCode(err, codeEntityExists):
		p.logger.Info("IAM role already exists", "role", name)
	case err != nil:
		return "", fmt.Errorf("failed to create role %s: %w", name, err)
	}

	p.logger.Info("attaching policy", "role", name, "policy", S3ReadOnlyPolicyARN)
	if _, err := p.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(name),
		PolicyArn: aws.String(S3ReadOnlyPolicyARN),
	}); err != nil {
		return "", fmt.Errorf("failed to attach policy to role %s: %w", name, err)
	}

	out, err := p.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to get role %s: %w", name, err)
	}
	if out.Role == nil || aws.ToString(out.Role.Arn) == "" {
		return "", fmt.Errorf("role %s has no ARN", name)
	}
	return aws.ToString(out.Role.Arn), nil
}

func (p *Provisioner) createCluster(ctx context.Context, spec ClusterSpec, roleARN string) error {
	in := &redshift.CreateClusterInput{
		ClusterIdentifier:  aws.String(spec.Identifier),
		ClusterType:        aws.String(spec.ClusterType),
		NodeType:           aws.String(spec.NodeType),
		DBName:             aws.String(spec.DBName),
		MasterUsername:     aws.String(spec.MasterUser),
		MasterUserPassword: aws.String(spec.MasterPassword),
		IamRoles:           []string{roleARN},
	}
	// NumberOfNodes is rejected for single-node clusters.
	if spec.ClusterType == "multi-node" {
		in.NumberOfNodes = aws.Int32(int32(spec.NumNodes)) //nolint:gosec // validated by config
	}
	if spec.Port > 0 {
		in.Port = aws.Int32(int32(spec.Port)) //nolint:gosec // port range
	}

	p.logger.Info("creating cluster",
		"cluster", spec.Identifier,
		"type", spec.ClusterType,
		"node_type", spec.NodeType,
		"nodes", spec.NumNodes)
	_, err := p.redshift.CreateCluster(ctx, in)
	switch {
	case cloud.IsErrorCode(err, codeClusterExists):
		p.logger.Info("cluster already exists", "cluster", spec.Identifier)
	case err != nil:
		return fmt.Errorf("failed to create cluster %s: %w", spec.Identifier, err)
	}
	return nil
}

func (p *Provisioner) describe(ctx context.Context, identifier string) (*rstypes.Cluster, error) {
	out, err := p.redshift.DescribeClusters(ctx, &redshift.DescribeClustersInput{
		ClusterIdentifier: aws.String(identifier),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe cluster %s: %w", identifier, err)
	}
	if len(out.Clusters) == 0 {
		return nil, fmt.Errorf("cluster %s not found", identifier)
	}
	return &out.Clusters[0], nil
}

// openIngress authorizes TCP traffic on port from cidr on the VPC's default
// security group and returns the group ID.
func (p *Provisioner) openIngress(ctx context.Context, vpcID, cidr string, port int) (string, error) {
	if vpcID == "" {
		return "", errors.New("cluster has no VPC; cannot open ingress")
	}

	out, err := p.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("group-name"), Values: []string{"default"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to find default security group of %s: %w", vpcID, err)
	}
	if len(out.SecurityGroups) == 0 {
		return "", fmt.Errorf("VPC %s has no default security group", vpcID)
	}
	sgID := aws.ToString(out.SecurityGroups[0].GroupId)

	p.logger.Info("authorizing ingress", "security_group", sgID, "cidr", cidr, "port", port)
	_, err = p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(sgID),
		IpPermissions: []ec2types.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(int32(port)), //nolint:gosec // port range
			ToPort:     aws.Int32(int32(port)), //nolint:gosec // port range
			IpRanges: []ec2types.IpRange{{
				CidrIp:      aws.String(cidr),
				Description: aws.String("dwhetl warehouse access"),
			}},
		}},
	})
	switch {
	case cloud.IsErrorCode(err, codeDuplicateRule):
		p.logger.Info("ingress rule already present", "security_group", sgID)
	case err != nil:
		return "", fmt.Errorf("failed to authorize ingress on %s: %w", sgID, err)
	}
	return sgID, nil
}

func trustPolicy() string {
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Action":    "sts:AssumeRole",
			"Effect":    "Allow",
			"Principal": map[string]string{"Service": "redshift.amazonaws.com"},
		}},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

func waitTimeout(spec ClusterSpec) time.Duration {
	if spec.WaitTimeout > 0 {
		return spec.WaitTimeout
	}
	return defaultWaitTimeout
}
