package provision

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	rstypes "github.com/aws/aws-sdk-go-v2/service/redshift/types"
	"github.com/aws/smithy-go"
	"github.com/leapstack-labs/dwhetl/internal/config"
	"github.com/leapstack-labs/dwhetl/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roleARN = "arn:aws:iam::123456789012:role/dwhRole"

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

type fakeIAM struct {
	calls     []string
	createErr error
	detachErr error
	deleteErr error
	trust     string
}

func (f *fakeIAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.calls = append(f.calls, "CreateRole")
	f.trust = aws.ToString(in.AssumeRolePolicyDocument)
	return &iam.CreateRoleOutput{}, f.createErr
}

func (f *fakeIAM) AttachRolePolicy(_ context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.calls = append(f.calls, "AttachRolePolicy:"+aws.ToString(in.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) GetRole(_ context.Context, _ *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.calls = append(f.calls, "GetRole")
	return &iam.GetRoleOutput{Role: &iamtypes.Role{Arn: aws.String(roleARN)}}, nil
}

func (f *fakeIAM) DetachRolePolicy(_ context.Context, _ *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.calls = append(f.calls, "DetachRolePolicy")
	return &iam.DetachRolePolicyOutput{}, f.detachErr
}

func (f *fakeIAM) DeleteRole(_ context.Context, _ *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.calls = append(f.calls, "DeleteRole")
	return &iam.DeleteRoleOutput{}, f.deleteErr
}

type fakeRedshift struct {
	created   *redshift.CreateClusterInput
	createErr error
	deleted   *redshift.DeleteClusterInput
	deleteErr error
	// statuses are returned by successive DescribeClusters calls; an empty
	// status means the cluster is gone.
	statuses []string
	describes int
}

func (f *fakeRedshift) CreateCluster(_ context.Context, in *redshift.CreateClusterInput, _ ...func(*redshift.Options)) (*redshift.CreateClusterOutput, error) {
	f.created = in
	return &redshift.CreateClusterOutput{}, f.createErr
}

func (f *fakeRedshift) DeleteCluster(_ context.Context, in *redshift.DeleteClusterInput, _ ...func(*redshift.Options)) (*redshift.DeleteClusterOutput, error) {
	f.deleted = in
	return &redshift.DeleteClusterOutput{}, f.deleteErr
}

func (f *fakeRedshift) DescribeClusters(_ context.Context, in *redshift.DescribeClustersInput, _ ...func(*redshift.Options)) (*redshift.DescribeClustersOutput, error) {
	i := f.describes
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.describes++

	status := f.statuses[i]
	if status == "" {
		return nil, apiError(codeClusterNotFound)
	}
	return &redshift.DescribeClustersOutput{Clusters: []rstypes.Cluster{{
		ClusterIdentifier: in.ClusterIdentifier,
		ClusterStatus:     aws.String(status),
		Endpoint: &rstypes.Endpoint{
			Address: aws.String("dwhcluster.abc123.us-west-2.redshift.amazonaws.com"),
			Port:    aws.Int32(5439),
		},
		VpcId:    aws.String("vpc-0abc"),
		IamRoles: []rstypes.ClusterIamRole{{IamRoleArn: aws.String(roleARN)}},
	}}}, nil
}

type fakeEC2 struct {
	authorized *ec2.AuthorizeSecurityGroupIngressInput
	filters    []ec2types.Filter
	authErr    error
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	f.filters = in.Filters
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: []ec2types.SecurityGroup{{
		GroupId:   aws.String("sg-0def"),
		GroupName: aws.String("default"),
	}}}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.authorized = in
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, f.authErr
}

type fakes struct {
	iam      *fakeIAM
	redshift *fakeRedshift
	ec2      *fakeEC2
}

func newTestProvisioner(t *testing.T, statuses ...string) (*Provisioner, *fakes) {
	t.Helper()
	f := &fakes{
		iam:      &fakeIAM{},
		redshift: &fakeRedshift{statuses: statuses},
		ec2:      &fakeEC2{},
	}
	p := New(Clients{IAM: f.iam, Redshift: f.redshift, EC2: f.ec2}, testutil.NewTestLogger(t))
	p.PollInterval = time.Millisecond
	return p, f
}

func testSpec() ClusterSpec {
	return ClusterSpec{
		Identifier:     "dwhcluster",
		ClusterType:    "multi-node",
		NodeType:       "dc2.large",
		NumNodes:       4,
		DBName:         "dwh",
		MasterUser:     "dwhuser",
		MasterPassword: "Passw0rd",
		Port:           5439,
		RoleName:       "dwhRole",
		IngressCIDR:    "0.0.0.0/0",
		WaitTimeout:    time.Minute,
	}
}

func TestProvision(t *testing.T) {
	p, f := newTestProvisioner(t, "creating", "creating", "available")

	res, err := p.Provision(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, roleARN, res.RoleARN)
	assert.Equal(t, "dwhcluster.abc123.us-west-2.redshift.amazonaws.com", res.Endpoint)
	assert.Equal(t, 5439, res.Port)
	assert.Equal(t, "vpc-0abc", res.VpcID)
	assert.Equal(t, "sg-0def", res.SecurityGroupID)
	assert.Equal(t, "available", res.Status)

	assert.Equal(t, []string{"CreateRole", "AttachRolePolicy:" + S3ReadOnlyPolicyARN, "GetRole"}, f.iam.calls)

	var trust struct {
		Statement []struct {
			Action    string
			Principal map[string]string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(f.iam.trust), &trust))
	require.Len(t, trust.Statement, 1)
	assert.Equal(t, "sts:AssumeRole", trust.Statement[0].Action)
	assert.Equal(t, "redshift.amazonaws.com", trust.Statement[0].Principal["Service"])

	created := f.redshift.created
	require.NotNil(t, created)
	assert.Equal(t, int32(4), aws.ToInt32(created.NumberOfNodes))
	assert.Equal(t, []string{roleARN}, created.IamRoles)
	assert.Equal(t, "dwh", aws.ToString(created.DBName))
	assert.GreaterOrEqual(t, f.redshift.describes, 3)

	perm := f.ec2.authorized.IpPermissions[0]
	assert.Equal(t, "sg-0def", aws.ToString(f.ec2.authorized.GroupId))
	assert.Equal(t, "tcp", aws.ToString(perm.IpProtocol))
	assert.Equal(t, int32(5439), aws.ToInt32(perm.FromPort))
	assert.Equal(t, int32(5439), aws.ToInt32(perm.ToPort))
	assert.Equal(t, "0.0.0.0/0", aws.ToString(perm.IpRanges[0].CidrIp))
	assert.Equal(t, []string{"vpc-0abc"}, f.ec2.filters[0].Values)
}

func TestProvision_IsIdempotent(t *testing.T) {
	p, f := newTestProvisioner(t, "available")
	f.iam.createErr = apiError(codeEntityExists)
	f.redshift.createErr = apiError(codeClusterExists)
	f.ec2.authErr = apiError(codeDuplicateRule)

	res, err := p.Provision(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, roleARN, res.RoleARN)
}

func TestProvision_SingleNodeOmitsNodeCount(t *testing.T) {
	p, f := newTestProvisioner(t, "available")
	spec := testSpec()
	spec.ClusterType = "single-node"

	_, err := p.Provision(context.Background(), spec)
	require.NoError(t, err)
	assert.Nil(t, f.redshift.created.NumberOfNodes)
}

func TestProvision_AbortsOnOtherErrors(t *testing.T) {
	t.Run("role", func(t *testing.T) {
		p, f := newTestProvisioner(t, "available")
		f.iam.createErr = apiError("AccessDenied")

		_, err := p.Provision(context.Background(), testSpec())
		assert.ErrorContains(t, err, "failed to create role dwhRole")
		assert.Nil(t, f.redshift.created)
	})

	t.Run("cluster", func(t *testing.T) {
		p, f := newTestProvisioner(t, "available")
		f.redshift.createErr = apiError("ClusterQuotaExceeded")

		_, err := p.Provision(context.Background(), testSpec())
		assert.ErrorContains(t, err, "failed to create cluster dwhcluster")
		assert.Zero(t, f.redshift.describes)
	})

	t.Run("cluster fails while creating", func(t *testing.T) {
		p, _ := newTestProvisioner(t, "creating", "deleting")

		_, err := p.Provision(context.Background(), testSpec())
		assert.ErrorContains(t, err, "did not become available")
	})

	t.Run("ingress", func(t *testing.T) {
		p, f := newTestProvisioner(t, "available")
		f.ec2.authErr = apiError("UnauthorizedOperation")

		_, err := p.Provision(context.Background(), testSpec())
		assert.ErrorContains(t, err, "failed to authorize ingress on sg-0def")
	})
}

func TestTeardown(t *testing.T) {
	p, f := newTestProvisioner(t, "deleting", "")

	require.NoError(t, p.Teardown(context.Background(), testSpec()))

	require.NotNil(t, f.redshift.deleted)
	assert.True(t, aws.ToBool(f.redshift.deleted.SkipFinalClusterSnapshot))
	assert.Equal(t, 2, f.redshift.describes)
	assert.Equal(t, []string{"DetachRolePolicy", "DeleteRole"}, f.iam.calls)
}

func TestTeardown_ToleratesMissingResources(t *testing.T) {
	p, f := newTestProvisioner(t, "")
	f.redshift.deleteErr = apiError(codeClusterNotFound)
	f.iam.detachErr = apiError(codeNoSuchEntity)
	f.iam.deleteErr = apiError(codeNoSuchEntity)

	require.NoError(t, p.Teardown(context.Background(), testSpec()))
	assert.Zero(t, f.redshift.describes)
}

func TestTeardown_AbortsOnOtherErrors(t *testing.T) {
	p, f := newTestProvisioner(t, "")
	f.redshift.deleteErr = apiError("InvalidClusterState")

	err := p.Teardown(context.Background(), testSpec())
	assert.ErrorContains(t, err, "failed to delete cluster dwhcluster")
	assert.Empty(t, f.iam.calls)
}

func TestDescribe(t *testing.T) {
	p, _ := newTestProvisioner(t, "available")

	res, err := p.Describe(context.Background(), "dwhcluster")
	require.NoError(t, err)
	assert.Equal(t, "available", res.Status)
	assert.Equal(t, roleARN, res.RoleARN)
}

func TestSpecFromConfig(t *testing.T) {
	cfg := &config.Config{
		Target: &config.TargetConfig{Type: "redshift", Database: "dwh", User: "u", Password: "p", Port: 5439},
		Cluster: config.ClusterConfig{
			Identifier: "c", Type: "multi-node", NodeType: "dc2.large", NumNodes: 2,
			IAMRoleName: "r", IngressCIDR: "10.0.0.0/8", WaitTimeout: 5 * time.Minute,
		},
	}

	spec := SpecFromConfig(cfg)
	assert.Equal(t, ClusterSpec{
		Identifier: "c", ClusterType: "multi-node", NodeType: "dc2.large", NumNodes: 2,
		DBName: "dwh", MasterUser: "u", MasterPassword: "p", Port: 5439,
		RoleName: "r", IngressCIDR: "10.0.0.0/8", WaitTimeout: 5 * time.Minute,
	}, spec)
}
