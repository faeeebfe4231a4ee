package main

import (
	"flag"
	"fmt"
	"io"
)

var foundRPCCall = callRPC

func runFoundCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, foundUsage())
		return 1
	}

	switch args[0] {
	case "create":
		return runFoundCreate(args[1:], stdout, stderr)
	case "get":
		return runFoundGet(args[1:], stdout, stderr)
	case "list":
		return runFoundList(args[1:], stdout, stderr)
	case "claim":
		return runFoundClaim(args[1:], stdout, stderr)
	case "ticket":
		return runFoundTicket(args[1:], stdout, stderr)
	case "approve":
		return runFoundSettle("findare_approveClaim", args[1:], stdout, stderr)
	case "reject":
		return runFoundSettle("findare_rejectClaim", args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown found subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, foundUsage())
		return 1
	}
}

func foundUsage() string {
	return `Usage: findare-cli found <subcommand>

Subcommands:
  create   --finder <addr> --seq <n> --title <s> [--description <s>] [--attributes <s>] [--photo <ref>]
  get      --address <addr>
  list
  claim    --post <addr> --claimer <addr> [--notes <s>] --deposit <amount>
  ticket   --post <addr> --claimer <addr>
  approve  --caller <admin> --post <addr>
  reject   --caller <admin> --post <addr>`
}

func newFoundFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printFoundError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func runFoundCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFoundFlagSet("found create", stderr)
	var (
		finder      string
		seq         uint64
		title       string
		description string
		attributes  string
		photo       string
	)
	fs.StringVar(&finder, "finder", "", "finder bech32 address")
	fs.Uint64Var(&seq, "seq", 0, "finder's current found-post sequence number")
	fs.StringVar(&title, "title", "", "item title")
	fs.StringVar(&description, "description", "", "item description")
	fs.StringVar(&attributes, "attributes", "", "distinguishing attributes")
	fs.StringVar(&photo, "photo", "", "photo reference")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if finder == "" {
		return printFoundError(stderr, "--finder is required")
	}
	if title == "" {
		return printFoundError(stderr, "--title is required")
	}

	result, err := foundRPCCall("findare_createFoundListing", map[string]interface{}{
		"finder":      finder,
		"seq":         seq,
		"title":       title,
		"description": description,
		"attributes":  attributes,
		"photoRef":    photo,
	}, true)
	if err != nil {
		return printFoundError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runFoundGet(args []string, stdout, stderr io.Writer) int {
	fs := newFoundFlagSet("found get", stderr)
	var address string
	fs.StringVar(&address, "address", "", "found listing address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if address == "" {
		return printFoundError(stderr, "--address is required")
	}

	result, err := foundRPCCall("findare_getFoundListing", map[string]interface{}{"address": address}, false)
	if err != nil {
		return printFoundError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runFoundList(args []string, stdout, stderr io.Writer) int {
	fs := newFoundFlagSet("found list", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	result, err := foundRPCCall("findare_listFoundListings", nil, false)
	if err != nil {
		return printFoundError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runFoundClaim(args []string, stdout, stderr io.Writer) int {
	fs := newFoundFlagSet("found claim", stderr)
	var (
		post    string
		claimer string
		notes   string
		deposit string
	)
	fs.StringVar(&post, "post", "", "found listing address")
	fs.StringVar(&claimer, "claimer", "", "claimer bech32 address")
	fs.StringVar(&notes, "notes", "", "ownership proof notes")
	fs.StringVar(&deposit, "deposit", "", "good-faith deposit in coins, e.g. 0.01")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if post == "" {
		return printFoundError(stderr, "--post is required")
	}
	if claimer == "" {
		return printFoundError(stderr, "--claimer is required")
	}
	if deposit == "" {
		return printFoundError(stderr, "--deposit is required")
	}

	result, err := foundRPCCall("findare_claimFoundListing", map[string]interface{}{
		"foundPost": post,
		"claimer":   claimer,
		"notes":     notes,
		"deposit":   deposit,
	}, true)
	if err != nil {
		return printFoundError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runFoundTicket(args []string, stdout, stderr io.Writer) int {
	fs := newFoundFlagSet("found ticket", stderr)
	var (
		post    string
		claimer string
	)
	fs.StringVar(&post, "post", "", "found listing address")
	fs.StringVar(&claimer, "claimer", "", "claimer bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if post == "" {
		return printFoundError(stderr, "--post is required")
	}
	if claimer == "" {
		return printFoundError(stderr, "--claimer is required")
	}

	result, err := foundRPCCall("findare_getClaimTicket", map[string]interface{}{
		"foundPost": post,
		"claimer":   claimer,
	}, false)
	if err != nil {
		return printFoundError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}

func runFoundSettle(method string, args []string, stdout, stderr io.Writer) int {
	fs := newFoundFlagSet("found settle", stderr)
	var (
		caller string
		post   string
	)
	fs.StringVar(&caller, "caller", "", "admin bech32 address")
	fs.StringVar(&post, "post", "", "found listing address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if caller == "" {
		return printFoundError(stderr, "--caller is required")
	}
	if post == "" {
		return printFoundError(stderr, "--post is required")
	}

	result, err := foundRPCCall(method, map[string]interface{}{
		"caller":    caller,
		"foundPost": post,
	}, true)
	if err != nil {
		return printFoundError(stderr, err.Error())
	}
	return printLostResult(stdout, result)
}
