package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"swcatalog/internal/grpcserver"
	"swcatalog/internal/logging"
)

func (a *App) newGrpcCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grpc-server",
		Short: "Serve only the gRPC health endpoint",
		Long: `Serve grpc.health.v1.Health for the catalog database. Ingestion status is
reported by "swcatalog serve", which runs the ingestion itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			lis, err := net.Listen("tcp", a.cfg.GrpcAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.GrpcAddr, err)
			}
			gs := grpcserver.NewServer(db, nil, logging.Component(a.log, "grpc"))
			return gs.Serve(cmd.Context(), lis, 15*time.Second)
		},
	}
	cmd.Flags().String("grpc-addr", "", "listen address")
	return cmd
}
