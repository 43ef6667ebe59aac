package main

import (
	"context"
	"fmt"
	"time"

	"virkum-respond/internal/app"
	"virkum-respond/internal/messaging"
	"virkum-respond/internal/repository"

	"github.com/spf13/cobra"
)

func newEnqueueCmd(env *cliEnv) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a run request for the server through RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var companies repository.CompanyRepository
			if flags.company != "" {
				db, err := env.database(ctx)
				if err != nil {
					return err
				}
				companies = repository.NewPgCompanyRepository(db.Pool, env.log)
			}
			req, err := flags.request(ctx, companies)
			if err != nil {
				return err
			}

			conn, err := app.ConnectRabbitMQ(ctx, env.cfg.RabbitMQURL, 1, time.Second, env.log)
			if err != nil {
				return err
			}
			defer conn.Close()

			publisher, err := messaging.NewRunRequestPublisher(conn, env.cfg.RunRequestQueue, env.log)
			if err != nil {
				return err
			}
			pubCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := publisher.PublishRunRequest(pubCtx, req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run request queued to %s\n", env.cfg.RunRequestQueue)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
