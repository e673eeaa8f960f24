package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/cloud"
	"github.com/leapstack-labs/dwhetl/internal/provision"
	"github.com/spf13/cobra"
)

// NewProvisionCommand creates the provision command and its status
// subcommand.
func NewProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the IAM role and Redshift cluster",
		Long: `Create an IAM role that Redshift can assume with read-only S3 access,
launch the cluster described by the cluster section of the config, wait for
it to become available and open its port on the VPC's default security group.

Resources that already exist are reused. The command prints the endpoint and
role ARN to copy into target.host and iam_role.arn.`,
		Example: `  # Launch the cluster from dwh.cfg
  dwhetl provision --config dwh.cfg

  # Check on it later
  dwhetl provision status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, p, err := newProvisioner(cmd)
			if err != nil {
				return err
			}
			if err := cc.Cfg.RequireCluster(); err != nil {
				return err
			}
			res, err := p.Provision(cmd.Context(), provision.SpecFromConfig(cc.Cfg))
			if err != nil {
				return err
			}
			return renderCluster(cc.Renderer, cc.Cfg.Cluster.Identifier, res, true)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the cluster status and endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, p, err := newProvisioner(cmd)
			if err != nil {
				return err
			}
			res, err := p.Describe(cmd.Context(), cc.Cfg.Cluster.Identifier)
			if err != nil {
				return err
			}
			return renderCluster(cc.Renderer, cc.Cfg.Cluster.Identifier, res, false)
		},
	})

	return cmd
}

// TeardownOptions holds options for the teardown command.
type TeardownOptions struct {
	Yes bool
}

// NewTeardownCommand creates the teardown command.
func NewTeardownCommand() *cobra.Command {
	opts := &TeardownOptions{}

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Delete the Redshift cluster and IAM role",
		Long: `Delete the cluster without a final snapshot, wait until it is gone, then
detach the S3 policy and delete the IAM role. Every table and row in the
cluster is lost.`,
		Example: `  dwhetl teardown --yes`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.Yes {
				return errors.New("teardown deletes the cluster and all of its data; pass --yes to confirm")
			}
			cc, p, err := newProvisioner(cmd)
			if err != nil {
				return err
			}
			spec := provision.SpecFromConfig(cc.Cfg)
			if err := p.Teardown(cmd.Context(), spec); err != nil {
				return err
			}
			cc.Renderer.Success(fmt.Sprintf("Cluster %s and role %s deleted", spec.Identifier, spec.RoleName))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Confirm deletion")

	return cmd
}

func newProvisioner(cmd *cobra.Command) (*CommandContext, *provision.Provisioner, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	p, err := provisionerFor(cmd.Context(), cc)
	if err != nil {
		return nil, nil, err
	}
	return cc, p, nil
}

// provisionerFor builds a Provisioner from the AWS section of the config.
// Tests replace it to supply fake clients.
var provisionerFor = func(ctx context.Context, cc *CommandContext) (*provision.Provisioner, error) {
	awsCfg, err := cloud.LoadConfig(ctx, cc.Cfg.AWS)
	if err != nil {
		return nil, err
	}
	return provision.New(provision.ClientsFromConfig(awsCfg), cc.Logger), nil
}

// ClusterOutput is the JSON output for provision and provision status.
type ClusterOutput struct {
	Identifier      string `json:"identifier"`
	Status          string `json:"status"`
	Endpoint        string `json:"endpoint,omitempty"`
	Port            int    `json:"port,omitempty"`
	RoleARN         string `json:"role_arn,omitempty"`
	VpcID           string `json:"vpc_id,omitempty"`
	SecurityGroupID string `json:"security_group_id,omitempty"`
}

func renderCluster(r *output.Renderer, identifier string, res *provision.Result, nextSteps bool) error {
	out := ClusterOutput{
		Identifier:      identifier,
		Status:          res.Status,
		Endpoint:        res.Endpoint,
		Port:            res.Port,
		RoleARN:         res.RoleARN,
		VpcID:           res.VpcID,
		SecurityGroupID: res.SecurityGroupID,
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Cluster "+identifier)
	r.KeyValue("Status", out.Status)
	if out.Endpoint != "" {
		r.KeyValue("Endpoint", out.Endpoint)
		r.KeyValue("Port", strconv.Itoa(out.Port))
	}
	if out.RoleARN != "" {
		r.KeyValue("Role ARN", out.RoleARN)
	}
	if out.SecurityGroupID != "" {
		r.KeyValue("Security group", out.SecurityGroupID)
	}

	if nextSteps {
		r.Println()
		r.Println("Next steps:")
		r.Printf("  1. Set target.host to %s and iam_role.arn to %s\n", out.Endpoint, out.RoleARN)
		r.Println("  2. Run 'dwhetl reset' to create the tables")
		r.Println("  3. Run 'dwhetl load' to stage and transform the data")
	}
	return nil
}
