package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/seed"
	"virkum-respond/internal/service"
	"virkum-respond/internal/worker"
	"virkum-respond/pkg/taskmanager"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runFlags флаги запроса на прогон, общие для run и enqueue.
type runFlags struct {
	company      string
	random       bool
	emails       int
	concurrency  int
	to           string
	send         bool
	seed         int64
	inputEmail   string
	scenarios    bool
	companiesFile string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.company, "company", "", "company id or name")
	cmd.Flags().BoolVar(&f.random, "random", false, "pick a random company for every email")
	cmd.Flags().IntVarP(&f.emails, "emails", "n", 10, "number of emails to generate")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", 5, "number of concurrent workers")
	cmd.Flags().StringVar(&f.to, "to", "", "recipient address for auto-send")
	cmd.Flags().BoolVar(&f.send, "send", false, "send every generated email to --to")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed for company and scenario selection (0 = random)")
	cmd.Flags().StringVar(&f.inputEmail, "input-email", "", "customer email to reply to (text or @file)")
	cmd.Flags().BoolVar(&f.scenarios, "scenarios", false, "reply to built-in customer scenarios")
}

// request собирает RunRequest. Имя компании разрешается через companies.
func (f *runFlags) request(ctx context.Context, companies repository.CompanyRepository) (domain.RunRequest, error) {
	req := domain.RunRequest{
		RandomCompany:    f.random,
		NumEmails:        f.emails,
		ConcurrencyLevel: f.concurrency,
		Recipient:        strings.TrimSpace(f.to),
		AutoSend:         f.send,
		UseScenarios:     f.scenarios,
	}
	if f.seed != 0 {
		s := uint64(f.seed)
		req.Seed = &s
	}

	input, err := readInputEmail(f.inputEmail)
	if err != nil {
		return domain.RunRequest{}, err
	}
	req.InputEmail = input

	if f.company != "" {
		id, err := resolveCompany(ctx, companies, f.company)
		if err != nil {
			return domain.RunRequest{}, err
		}
		req.CompanyID = &id
	}
	return req, nil
}

func readInputEmail(value string) (string, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return value, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input email: %w", err)
	}
	return string(data), nil
}

func resolveCompany(ctx context.Context, companies repository.CompanyRepository, value string) (int64, error) {
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return id, nil
	}
	if companies == nil {
		return 0, fmt.Errorf("company %q: %w", value, domain.ErrNotFound)
	}
	list, err := companies.List(ctx)
	if err != nil {
		return 0, err
	}
	key := domain.NormalizedName(value)
	for _, c := range list {
		if domain.NormalizedName(c.Name) == key {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("company %q: %w", value, domain.ErrNotFound)
}

func newRunCmd(env *cliEnv) *cobra.Command {
	var (
		flags       runFlags
		noRecord    bool
		pushgateway string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test and print events as they arrive",
		Long: "Generate --emails emails with --concurrency workers, grade every reply and print a summary.\n" +
			"Ctrl+C stops scheduling new emails; emails already in progress are finished and reported.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			companies, tests, scenarios, err := openRunStores(ctx, env, flags.companiesFile, noRecord)
			if err != nil {
				return err
			}

			req, err := flags.request(ctx, companies)
			if err != nil {
				return err
			}

			dispatcher, metrics, err := env.newDispatcher(env.cfg, env.log)
			if err != nil {
				return err
			}
			runService := service.NewRunService(dispatcher, companies, tests, nil, nil,
				taskmanager.New(taskmanager.Config{MaxActive: 1}),
				service.RunServiceConfig{
					MaxEmailsPerRun:     env.cfg.MaxEmailsPerRun,
					MaxConcurrencyLevel: env.cfg.MaxConcurrencyLevel,
					Scenarios:           scenarios,
				}, env.log)

			out := cmd.OutOrStdout()
			events := worker.NewEventLog()
			printed := make(chan struct{})
			go func() {
				defer close(printed)
				for e := range events.Follow(context.Background(), 0) {
					fmt.Fprintln(out, formatEvent(e))
				}
			}()

			report, err := runService.RunSync(ctx, req, events)
			events.Close()
			<-printed
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			printSummary(out, report.Summary)

			if pushgateway != "" {
				pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := metrics.Push(pushCtx, pushgateway); err != nil {
					env.log.Warn("Failed to push metrics", zap.Error(err))
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.companiesFile, "companies-file", "", "YAML file with companies and scenarios (no database needed)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record the run in the database")
	cmd.Flags().StringVar(&pushgateway, "pushgateway", "", "Prometheus Pushgateway URL for run metrics")
	return cmd
}

// openRunStores выбирает источник компаний и журнал прогонов.
// С --companies-file база данных нужна только для записи итога.
func openRunStores(ctx context.Context, env *cliEnv, companiesFile string, noRecord bool) (repository.CompanyRepository, repository.TestRepository, []string, error) {
	var (
		companies repository.CompanyRepository
		tests     repository.TestRepository
		scenarios []string
	)
	if companiesFile != "" {
		file, err := seed.Load(companiesFile)
		if err != nil {
			return nil, nil, nil, err
		}
		companies = repository.NewMemoryCompanyRepository(file.DomainCompanies())
		scenarios = file.Scenarios
	}
	if companies != nil && noRecord {
		return companies, nil, scenarios, nil
	}

	db, err := env.database(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if companies == nil {
		companies = repository.NewPgCompanyRepository(db.Pool, env.log)
	}
	if !noRecord {
		tests = repository.NewPgTestRepository(db.Pool, env.log)
	}
	return companies, tests, scenarios, nil
}

func printSummary(w io.Writer, s domain.RunSummary) {
	for _, line := range formatSummary(s) {
		fmt.Fprintln(w, line)
	}
}
