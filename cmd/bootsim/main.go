/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package main

import (
	"fmt"
	"os"

	"github.com/kardianos/osext"
	shellquote "github.com/kballard/go-shellquote"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcu-tools/bootsim/boot"
	"github.com/mcu-tools/bootsim/boot/refboot"
	"github.com/mcu-tools/bootsim/catalog"
	"github.com/mcu-tools/bootsim/harness"
	"github.com/mcu-tools/bootsim/util"
)

var (
	logLevel    string
	logFilename string
	verbosity   int

	runDevice string
	runAlign  int

	bootSimVersion = "1.0"
)

// BootsimUsage prints a SimError's message (and stack trace at verbose
// verbosity) and the command's usage, then exits non-zero, the way newt's
// NewtUsage reports a broken invocation.
func BootsimUsage(cmd *cobra.Command, err error) {
	if err != nil {
		if se, ok := err.(*util.SimError); ok {
			util.WriteMessage(os.Stderr, util.VERBOSITY_VERBOSE, "%s\n", se.StackTrace)
		}
		fmt.Fprintln(os.Stderr, "Error: ", err)
	}
	if cmd != nil {
		cmd.Usage()
	}
	os.Exit(1)
}

func runSizesCmd(cmd *cobra.Command, args []string) {
	for _, name := range catalog.AllDevices {
		preset := catalog.Presets()[name]
		total := 0
		for _, s := range preset.Sectors {
			total += s
		}
		fmt.Printf("%-10s %d sectors, %d bytes total\n", name, len(preset.Sectors), total)
	}
}

func runOne(device string, align int) int {
	caps := boot.Caps{SwapUpgrade: true, ValidateSlot0: true}
	bootFn := refboot.New(caps)

	status := &harness.RunStatus{}
	if err := harness.RunSingle(device, align, bootFn, caps, status); err != nil {
		BootsimUsage(nil, err)
	}

	util.StatusMessage(util.VERBOSITY_DEFAULT, "%s align=%d: %d passed, %d failed\n",
		device, align, status.Passes, status.Failures)
	return status.Failures
}

func initLogging(cmd *cobra.Command) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		BootsimUsage(cmd, util.FmtSimError("invalid log level %q: %s", logLevel, err))
	}
	if err := util.Init(level, logFilename, verbosity); err != nil {
		BootsimUsage(cmd, err)
	}
}

func runCmd(cmd *cobra.Command, args []string) {
	initLogging(cmd)

	if runDevice == "" {
		BootsimUsage(cmd, util.FmtSimError("must specify --device"))
	}

	failures := runOne(runDevice, runAlign)
	if failures > 0 {
		os.Exit(1)
	}
}

func runallCmd(cmd *cobra.Command, args []string) {
	initLogging(cmd)

	total := 0
	for _, device := range catalog.AllDevices {
		for _, align := range catalog.AllAligns {
			total += runOne(device, align)
		}
	}
	if total > 0 {
		os.Exit(1)
	}
}

func parseCmds() *cobra.Command {
	bootsimCmd := &cobra.Command{
		Use:   "bootsim",
		Short: "bootsim simulates NOR flash and fault-injects an A/B firmware upgrade",
		Long: `bootsim emulates a NOR flash device and drives a bootloader binding
through upgrade, revert, interruption and fault-injection scenarios.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Usage()
		},
	}

	bootsimCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v",
		util.VERBOSITY_DEFAULT, "How verbose bootsim should be about its operation")
	bootsimCmd.PersistentFlags().StringVarP(&logLevel, "loglevel", "l",
		"WARN", "Log level, defaults to WARN.")
	bootsimCmd.PersistentFlags().StringVarP(&logFilename, "logfile", "o",
		"", "Log file, defaults to stderr.")

	versCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the bootsim version number",
		Run: func(cmd *cobra.Command, args []string) {
			exe, err := osext.Executable()
			if err != nil {
				exe = "bootsim"
			}
			fmt.Printf("%s version %s\n", exe, bootSimVersion)
		},
	}
	bootsimCmd.AddCommand(versCmd)

	sizesCobraCmd := &cobra.Command{
		Use:   "sizes",
		Short: "Print the sector count and total size of every device preset",
		Run:   runSizesCmd,
	}
	bootsimCmd.AddCommand(sizesCobraCmd)

	runCobraCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every scenario for a single device/alignment combination",
		Run:   runCmd,
	}
	runCobraCmd.Flags().StringVar(&runDevice, "device", "", "Device preset (stm32f4, k64f, k64fbig, nrf52840)")
	runCobraCmd.Flags().IntVar(&runAlign, "align", 1, "Write alignment (1, 2, 4 or 8)")
	bootsimCmd.AddCommand(runCobraCmd)

	runallCobraCmd := &cobra.Command{
		Use:   "runall",
		Short: "Run every scenario across all device/alignment combinations",
		Run:   runallCmd,
	}
	bootsimCmd.AddCommand(runallCobraCmd)

	return bootsimCmd
}

func main() {
	if v := os.Getenv("BOOTSIM_VERBOSE_ARGS"); v != "" {
		joined, err := shellquote.Split(v)
		if err == nil {
			util.WriteMessage(os.Stderr, util.VERBOSITY_VERBOSE, "invoked with: %v\n", joined)
		}
	}

	cmd := parseCmds()
	cmd.Execute()
}
