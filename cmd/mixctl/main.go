package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/m1ser4ble/mixfollower/internal/adapters/mqtt"
	"github.com/m1ser4ble/mixfollower/pkg/mixp"
)

type app struct {
	client   *mqtt.Client
	identity string
	nodeID   string
	timeout  time.Duration
	json     bool
}

func main() {
	root := &cobra.Command{
		Use:   "mixctl",
		Short: "Mix follower CLI",
	}

	var (
		broker    string
		topicBase string
		nodeID    string
		identity  string
		timeout   time.Duration
		jsonOut   bool
		userOpt   string
		passOpt   string
		tlsCA     string
		tlsCert   string
		tlsKey    string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", mixp.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&nodeID, "node-id", "n", "mix:follower:main", "follower node id")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "controller identity")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if broker == "" {
			broker = os.Getenv("MIXCTL_BROKER")
		}
		if broker == "" {
			return errors.New("broker is required (set --broker or MIXCTL_BROKER)")
		}
		identity = defaultIdentity(identity)

		clientID := fmt.Sprintf("mixctl-%d", time.Now().UnixNano())
		client, err := mqtt.NewClient(mqtt.Options{
			BrokerURL: broker,
			ClientID:  clientID,
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			TopicBase: topicBase,
			Timeout:   timeout,
		})
		if err != nil {
			return err
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			client:   client,
			identity: identity,
			nodeID:   nodeID,
			timeout:  timeout,
			json:     jsonOut,
		}))
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app := fromContext(cmd); app != nil {
			app.client.Disconnect()
		}
	}

	root.AddCommand(rebuildCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(sourcesCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

// request fills in the envelope bookkeeping and round-trips the command.
func (a *app) request(ctx context.Context, cmdType string, body any) (mixp.ReplyEnvelope, error) {
	cmd, err := mixp.NewCommand(cmdType, body)
	if err != nil {
		return mixp.ReplyEnvelope{}, err
	}
	cmd.ID = xid.New().String()
	cmd.TS = time.Now().Unix()
	cmd.From = a.identity
	cmd.ReplyTo = a.client.ReplyTopic()

	reply, err := a.client.Request(ctx, a.nodeID, cmd)
	if err != nil {
		return mixp.ReplyEnvelope{}, err
	}
	if !reply.OK {
		if reply.Err != nil {
			return reply, fmt.Errorf("%s: %s", reply.Err.Code, reply.Err.Message)
		}
		return reply, errors.New("command failed")
	}
	return reply, nil
}

func defaultIdentity(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "mixctl-unknown"
}
