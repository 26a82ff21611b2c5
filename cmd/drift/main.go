// Command drift downloads and seeds content from peer swarms.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cenkalti/log"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"

	"github.com/driftd/drift/internal/jsonutil"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/swarm"
)

// Version of the program. Set during build with ldflags.
var Version = "0.0.0"

var (
	cfg = swarm.DefaultConfig
	ses *swarm.Session
)

func main() {
	app := cli.NewApp()
	app.Name = "drift"
	app.Usage = "peer-to-peer content transfer tool"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read config from `FILE`",
			Value: "~/.drift/config.yaml",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:      "download",
			Usage:     "download a magnet link or manifest file",
			ArgsUsage: "[magnet link or file path]",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "seed",
					Usage: "continue seeding after download finishes",
				},
			},
			Action: handleDownload,
		},
		{
			Name:   "list",
			Usage:  "list transfers in the session",
			Action: handleList,
		},
		{
			Name:      "stats",
			Usage:     "show stats of a transfer",
			ArgsUsage: "[transfer id]",
			Action:    handleStats,
		},
		{
			Name:      "remove",
			Usage:     "remove a transfer and delete its data",
			ArgsUsage: "[transfer id]",
			Action:    handleRemove,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	if c.Bool("debug") {
		logger.SetLevel(log.DEBUG)
	}
	configPath, err := homedir.Expand(c.String("config"))
	if err != nil {
		return err
	}
	err = cfg.LoadFromYaml(configPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func newSession() error {
	var err error
	ses, err = swarm.NewSession(cfg)
	return err
}

func handleDownload(c *cli.Context) error {
	arg := c.Args().Get(0)
	if arg == "" {
		return cli.NewExitError("first argument must be a magnet link or a manifest file", 1)
	}
	err := newSession()
	if err != nil {
		return err
	}
	defer ses.Close()

	var sw *swarm.Swarm
	if strings.HasPrefix(arg, "magnet:") {
		sw, err = ses.AddMagnet(arg)
	} else {
		var f *os.File
		f, err = os.Open(arg)
		if err != nil {
			return err
		}
		sw, err = ses.AddTorrent(f)
		f.Close()
	}
	if err != nil {
		return err
	}

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)

	enc := json.NewEncoder(os.Stdout)
	errC := sw.NotifyError()
	completeC := sw.NotifyComplete()
	for {
		select {
		case e := <-sw.Events():
			err = enc.Encode(e)
			if err != nil {
				return err
			}
			if e.Type == swarm.EventCompleted && !c.Bool("seed") {
				return nil
			}
		case err = <-errC:
			if err != nil {
				return err
			}
			errC = nil
		case <-completeC:
			// Keep draining events until the completed event is printed.
			completeC = nil
		case <-sigC:
			return nil
		}
	}
}

func handleList(c *cli.Context) error {
	err := newSession()
	if err != nil {
		return err
	}
	defer ses.Close()
	for _, sw := range ses.Swarms() {
		st := sw.Stats()
		fmt.Printf("%s %-12s %s\n", sw.ID(), st.Status, st.Name)
	}
	return nil
}

func handleStats(c *cli.Context) error {
	id := c.Args().Get(0)
	if id == "" {
		return cli.NewExitError("first argument must be a transfer id", 1)
	}
	err := newSession()
	if err != nil {
		return err
	}
	defer ses.Close()
	sw := ses.GetSwarm(id)
	if sw == nil {
		return cli.NewExitError("transfer not found: "+id, 1)
	}
	b, err := jsonutil.MarshalLines(sw.Stats())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

func handleRemove(c *cli.Context) error {
	id := c.Args().Get(0)
	if id == "" {
		return cli.NewExitError("first argument must be a transfer id", 1)
	}
	err := newSession()
	if err != nil {
		return err
	}
	defer ses.Close()
	return ses.RemoveSwarm(id)
}
