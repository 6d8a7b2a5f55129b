package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cartCmd "github.com/Alturino/makelocal/cart/cmd"
	"github.com/Alturino/makelocal/internal/common/constants"
	"github.com/Alturino/makelocal/internal/log"
	orderCmd "github.com/Alturino/makelocal/order/cmd"
	productCmd "github.com/Alturino/makelocal/product/cmd"
)

const defaultLogPath = "/var/log/makelocal.log"

func Start() {
	logPath := os.Getenv("APPLICATION_LOG_PATH")
	if logPath == "" {
		logPath = defaultLogPath
	}
	logger := log.InitLogger(logPath, os.Getenv("APPLICATION_ENV")).
		With().
		Str(log.KeyAppName, constants.AppMakeLocal).
		Str(log.KeyTag, "main Start").
		Logger()

	logger.Info().Msg("adding listener for SIGINT and SIGTERM")
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().Msg("added listener for SIGINT and SIGTERM")

	c = logger.WithContext(c)

	rootCmd := &cobra.Command{
		Use:          constants.AppMakeLocal,
		Short:        "Storefront cart backend for makelocal",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newCartCommand(), newOrderStatusCommand(), newCatalogCommand())
	if err := rootCmd.ExecuteContext(c); err != nil {
		logger.Fatal().Err(err).Msgf("error when executing command=%s", err.Error())
	}
}

func newCartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cart",
		Short: "Run the storefront cart service",
		Run: func(cmd *cobra.Command, args []string) {
			cartCmd.RunCartService(cmd.Context())
		},
	}
}

func newOrderStatusCommand() *cobra.Command {
	var cartID string
	cmd := &cobra.Command{
		Use:   "order-status",
		Short: "Poll and log the order statuses of a cart's session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return orderCmd.RunOrderStatusWatcher(cmd.Context(), cartID)
		},
	}
	cmd.Flags().StringVar(&cartID, "cart", "", "cart id whose stored session is used")
	_ = cmd.MarkFlagRequired("cart")
	return cmd
}

func newCatalogCommand() *cobra.Command {
	var (
		coordinatorID string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Fetch and print the product catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return productCmd.RunCatalog(cmd.Context(), cmd.OutOrStdout(), coordinatorID, asJSON)
		},
	}
	cmd.Flags().StringVar(&coordinatorID, "coordinator", "", "coordinator id, defaults to catalog.coordinator_id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the transformed catalog as json")
	return cmd
}
