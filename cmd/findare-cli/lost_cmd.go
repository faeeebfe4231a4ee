package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

var lostRPCCall = callRPC

func runLostCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, lostUsage())
		return 1
	}

	switch args[0] {
	case "create":
		return runLostCreate(args[1:], stdout, stderr)
	case "get":
		return runLostGet(args[1:], stdout, stderr)
	case "list":
		return runLostList(args[1:], stdout, stderr)
	case "report":
		return runLostReport(args[1:], stdout, stderr)
	case "approve":
		return runLostSettle("findare_approveFoundReport", args[1:], stdout, stderr)
	case "reject":
		return runLostSettle("findare_rejectFoundReport", args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown lost subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, lostUsage())
		return 1
	}
}

func lostUsage() string {
	return `Usage: findare-cli lost <subcommand>

Subcommands:
  create   --poster <addr> --seq <n> --title <s> [--description <s>] [--attributes <s>] [--photo <ref>] --reward <amount>
  get      --address <addr>
  list
  report   --post <addr> --finder <addr> [--evidence <uri>]
  approve  --caller <admin> --post <addr>
  reject   --caller <admin> --post <addr>`
}

func newLostFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printLostError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func printLostResult(stdout io.Writer, result json.RawMessage) int {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	fmt.Fprintln(stdout, pretty.String())
	return 0
}

func runLostCreate(args []string, stdout, stderr io.Writer) int {
	fs := newLostFlagSet("lost create", stderr)
	var (
		poster      string
		seq         uint64
		title       string
		description string
		attributes  string
		photo       string
		reward      string
	)
	fs.StringVar(&poster, "poster", "", "poster bech32 address")
	fs.Uint64Var(&seq, "seq", 0, "poster's current lost-post sequence number")
	fs.StringVar(&title, "title", "", "item title")
	fs.StringVar(&description, "description", "", "item description")
	fs.StringVar(&attributes, "attributes", "", "distinguishing attributes")
	fs.StringVar(&photo, "photo", "", "photo reference")
	fs.StringVar(&reward, "reward", "", "reward amount in coins, e.g. 0.5")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if poster == "" {
		return printLostError(stderr, "--poster is required")
	}
	if title == "" {
		return printLostError(stderr, "--title is required")
	}
	if reward == "" {
		return printLostError(stderr, "--reward is required")
	}

	result, err := lostRPCCall("findare_createLostPost", map[string]interface{}{
		"poster":      poster,
		"seq":         seq,
		"title":       title,
		"description": description,
		"attributes":  attributes,
		"photoRef":    photo,
		"reward":      reward,
	}, true)
	if err != nil {
		return printLostError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runLostGet(args []string, stdout, stderr io.Writer) int {
	fs := newLostFlagSet("lost get", stderr)
	var address string
	fs.StringVar(&address, "address", "", "lost post address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printLostError(stderr, "--address is required")
	}

	result, err := lostRPCCall("findare_getLostPost", map[string]interface{}{"address": address}, false)
	if err != nil {
		return printLostError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runLostList(args []string, stdout, stderr io.Writer) int {
	fs := newLostFlagSet("lost list", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	result, err := lostRPCCall("findare_listLostPosts", nil, false)
	if err != nil {
		return printLostError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runLostReport(args []string, stdout, stderr io.Writer) int {
	fs := newLostFlagSet("lost report", stderr)
	var (
		post     string
		finder   string
		evidence string
	)
	fs.StringVar(&post, "post", "", "lost post address")
	fs.StringVar(&finder, "finder", "", "finder bech32 address")
	fs.StringVar(&evidence, "evidence", "", "evidence URI")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if post == "" {
		return printLostError(stderr, "--post is required")
	}
	if finder == "" {
		return printLostError(stderr, "--finder is required")
	}

	result, err := lostRPCCall("findare_submitFoundReport", map[string]interface{}{
		"lostPost":    post,
		"finder":      finder,
		"evidenceUri": evidence,
	}, true)
	if err != nil {
		return printLostError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runLostSettle(method string, args []string, stdout, stderr io.Writer) int {
	fs := newLostFlagSet("lost settle", stderr)
	var (
		caller string
		post   string
	)
	fs.StringVar(&caller, "caller", "", "admin bech32 address")
	fs.StringVar(&post, "post", "", "lost post address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if caller == "" {
		return printLostError(stderr, "--caller is required")
	}
	if post == "" {
		return printLostError(stderr, "--post is required")
	}

	result, err := lostRPCCall(method, map[string]interface{}{
		"caller":   caller,
		"lostPost": post,
	}, true)
	if err != nil {
		return printLostError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}
