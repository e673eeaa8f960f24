package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/cloud"
	"github.com/leapstack-labs/dwhetl/internal/config"
	"github.com/leapstack-labs/dwhetl/internal/source"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, connectivity and sources",
		Long: `Verify that a load can run: required configuration keys are set, the
warehouse accepts connections, the state database opens, and every source
prefix holds at least one object.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run all checks
  dwhetl doctor

  # Machine-readable
  dwhetl doctor -o json`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

// Doctor check statuses.
const (
	checkPass = "pass"
	checkFail = "fail"
)

// DoctorCheck is the result of one doctor check.
type DoctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	ConfigFile string        `json:"config_file,omitempty"`
	Target     string        `json:"target"`
	Checks     []DoctorCheck `json:"checks"`
	Failures   int           `json:"failures"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	checks := []func(context.Context, *CommandContext) []DoctorCheck{
		checkConfig,
		checkWarehouse,
		checkStateStore,
		checkSources,
	}
	results := make([][]DoctorCheck, len(checks))

	g, gctx := errgroup.WithContext(cmd.Context())
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx, cc)
			return nil
		})
	}
	_ = g.Wait()

	out := DoctorOutput{ConfigFile: cc.Cfg.File, Target: cc.Cfg.Target.Type}
	for _, rs := range results {
		for _, c := range rs {
			if c.Status == checkFail {
				out.Failures++
			}
			out.Checks = append(out.Checks, c)
		}
	}

	if err := renderDoctor(cc.Renderer, &out); err != nil {
		return err
	}
	if out.Failures > 0 {
		return fmt.Errorf("doctor found %d failing checks", out.Failures)
	}
	return nil
}

func result(name string, err error, detail string) DoctorCheck {
	if err != nil {
		return DoctorCheck{Name: name, Status: checkFail, Detail: err.Error()}
	}
	return DoctorCheck{Name: name, Status: checkPass, Detail: detail}
}

func checkConfig(_ context.Context, cc *CommandContext) []DoctorCheck {
	file := cc.Cfg.File
	if file == "" {
		file = "no config file; using defaults and environment"
	}
	return []DoctorCheck{
		result("config: target", cc.Cfg.RequireTarget(), file),
		result("config: sources", cc.Cfg.RequireSources(), ""),
	}
}

func checkWarehouse(ctx context.Context, cc *CommandContext) []DoctorCheck {
	name := "warehouse: " + cc.Cfg.Target.Type
	db, err := cc.OpenWarehouse(ctx)
	if err != nil {
		return []DoctorCheck{result(name, err, "")}
	}
	defer func() { _ = db.Close() }()

	detail := "connected"
	if t, ok := adapter.Lookup(cc.Cfg.Target.Type); ok && t.Remote {
		detail = fmt.Sprintf("connected to %s:%d", cc.Cfg.Target.Host, cc.Cfg.Target.Port)
	}
	return []DoctorCheck{result(name, db.Ping(ctx), detail)}
}

func checkStateStore(_ context.Context, cc *CommandContext) []DoctorCheck {
	store, err := cc.OpenStore()
	if err != nil {
		return []DoctorCheck{result("state", err, "")}
	}
	_ = store.Close()
	return []DoctorCheck{result("state", nil, cc.Cfg.StatePath)}
}

func checkSources(ctx context.Context, cc *CommandContext) []DoctorCheck {
	src := cc.Cfg.Sources
	if src.LogData == "" && src.SongData == "" {
		return nil
	}

	var client source.S3API
	if source.NeedsS3(src) {
		awsCfg, err := cloud.LoadConfig(ctx, sourceAWSConfig(cc.Cfg))
		if err != nil {
			return []DoctorCheck{result("sources: aws", err, "")}
		}
		client = s3.NewFromConfig(awsCfg)
	}

	checker := source.NewChecker(client, cc.Logger)
	var out []DoctorCheck
	for _, r := range checker.Preflight(ctx, src) {
		detail := ""
		if r.OK() {
			detail = fmt.Sprintf("%s (%d found)", r.Path, r.Found)
		}
		out = append(out, result("source: "+r.Name, r.Err, detail))
	}
	return out
}

// sourceAWSConfig targets the source bucket's region when it differs from
// the account default.
func sourceAWSConfig(cfg *config.Config) config.AWSConfig {
	aws := cfg.AWS
	if cfg.Sources.Region != "" {
		aws.Region = cfg.Sources.Region
	}
	return aws
}

func renderDoctor(r *output.Renderer, out *DoctorOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "dwhetl doctor")
	for _, c := range out.Checks {
		r.StatusLine(c.Name, c.Status, c.Detail)
	}
	r.Println()
	if out.Failures == 0 {
		r.Success("All checks passed")
	} else {
		r.Error(fmt.Sprintf("%d of %d checks failed", out.Failures, len(out.Checks)))
	}
	return nil
}
