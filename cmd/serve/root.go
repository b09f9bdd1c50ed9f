package serve

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/chainkv/chainkv/cmd/util"
	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/config"
	"github.com/chainkv/chainkv/chain/datalayer"
	"github.com/chainkv/chainkv/chain/frontend"
	"github.com/chainkv/chainkv/chain/logging"
	"github.com/chainkv/chainkv/chain/messenger"
	"github.com/chainkv/chainkv/chain/metrics"
	"github.com/chainkv/chainkv/chain/replication"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeCmd starts a chainkv node: the replication core plus the
// messenger, metrics and client-facing HTTP surfaces around it,
// following the teacher's serve command's PreRunE/RunE split.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start a chainkv node",
	Long:    `Start a chainkv node with the cluster layout read from --topology. Configuration can also be set via environment variables, formatted CHAINKV_<flag> (e.g. CHAINKV_LOG_LEVEL=debug).`,
	PreRunE: processConfig,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(cmdUtil.InitEnv)

	key := "topology"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Path to the topology file describing this cluster's spaces, subspaces and regions (YAML, JSON or TOML)"))

	key = "self"
	ServeCmd.Flags().Uint64(key, 0, cmdUtil.WrapString("This node's own instance id, as it appears in the topology file's instances list"))

	key = "listen"
	ServeCmd.Flags().String(key, "0.0.0.0:9000", cmdUtil.WrapString("Address the chain messenger listens on for peer connections, used if the topology's own instance entry has no address"))

	key = "http"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("Address the client-facing HTTP gateway listens on"))

	key = "metrics"
	ServeCmd.Flags().String(key, "0.0.0.0:9100", cmdUtil.WrapString("Address the Prometheus /metrics endpoint listens on"))

	key = "dial-timeout"
	ServeCmd.Flags().Int(key, 5, cmdUtil.WrapString("Timeout in seconds for outbound peer connection attempts"))

	key = "log-level"
	ServeCmd.Flags().String(key, "info", cmdUtil.WrapString("Log level (debug, info, warn, error)"))
}

// processConfig binds this command's flags to viper, the same discipline
// the teacher's serve command uses.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if viper.GetString("topology") == "" {
		return fmt.Errorf("--topology is required")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	logging.Init(viper.GetString("log-level"))
	log := logging.Factory("cmd")

	self := chain.InstanceId(viper.GetUint64("self"))
	topo, err := loadTopology(viper.GetString("topology"), self)
	if err != nil {
		return err
	}

	cfg := config.New(config.Options{Self: topo.Self, Spaces: topo.Spaces})
	log.Infof("loaded topology:\n%s", cfg.String())

	store := datalayer.New(datalayer.DefaultOptions())
	recorder := metrics.New()

	dispatch := newDispatcher(cfg)
	msngr := messenger.New(messenger.Options{
		Self:          topo.Self,
		Configuration: cfg,
		AddressBook:   staticAddressBook{addresses: topo.Addresses},
		Handler:       dispatch,
		DialTimeout:   time.Duration(viper.GetInt("dial-timeout")) * time.Second,
	})

	gw := frontend.New(frontend.Options{Configuration: cfg})

	mgr := replication.New(replication.Collaborators{
		DataLayer:       store,
		Messenger:       msngr,
		Configuration:   cfg,
		StateTransfers:  loggingStateTransfers{log: logging.Factory("cmd")},
		CoordinatorLink: loggingCoordinatorLink{log: logging.Factory("cmd")},
		Responder:       gw,
		Metrics:         recorder,
	})
	dispatch.manager = mgr
	gw.SetManager(mgr)

	listenAddr, ok := topo.Addresses[topo.Self]
	if !ok || listenAddr == "" {
		listenAddr = viper.GetString("listen")
	}
	if err := msngr.Listen(listenAddr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer func() { _ = msngr.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go mgr.Run(ctx)

	httpServer := &http.Server{Addr: viper.GetString("http"), Handler: gw.Handler()}
	metricsServer := &http.Server{Addr: viper.GetString("metrics"), Handler: recorder.Handler()}

	go func() {
		log.Infof("client gateway listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("client gateway: %v", err)
		}
	}()
	go func() {
		log.Infof("metrics listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	return nil
}
