// Command tvmc is the toolchain's command-line front end: parse, emit-c,
// and run sub-commands over urfave/cli, with aurora-colored diagnostics
// matching spec §7's "file:line:col: message" format.
package main

import (
	"fmt"
	"os"

	"github.com/logrusorgru/aurora"
	"github.com/urfave/cli/v2"

	"github.com/tvmlang/tvm/backend"
	"github.com/tvmlang/tvm/diag"
	"github.com/tvmlang/tvm/jit"
	"github.com/tvmlang/tvm/tvmast"
	"github.com/tvmlang/tvm/tvmbuild"
	"github.com/tvmlang/tvm/tvmparse"
	"github.com/tvmlang/tvm/workspace"

	_ "github.com/tvmlang/tvm/abi/armeabi"
	_ "github.com/tvmlang/tvm/abi/cdecl"
	_ "github.com/tvmlang/tvm/abi/sysv"
	_ "github.com/tvmlang/tvm/emitc"
	_ "github.com/tvmlang/tvm/vmexec"
)

func main() {
	au := aurora.NewAurora(true)

	app := &cli.App{
		Name:  "tvmc",
		Usage: "TVM toolchain: parse, lower, and JIT-load typed IR modules",
		Commands: []*cli.Command{
			parseCommand(au),
			emitCCommand(au),
			runCommand(au),
		},
	}

	if err := app.Run(os.Args); err != nil {
		printDiagnostic(au, err)
		os.Exit(1)
	}
}

func parseCommand(au aurora.Aurora) *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse a TVM source file and print its AST back out",
		ArgsUsage: "<file.tvm>",
		Action: func(c *cli.Context) error {
			file := c.Args().First()
			if file == "" {
				return cli.Exit("parse requires a source file argument", 2)
			}

			src, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			mod, err := tvmparse.Parse(file, src)
			if err != nil {
				return err
			}

			fmt.Fprint(c.App.Writer, tvmast.Print(mod))

			return nil
		},
	}
}

func emitCCommand(au aurora.Aurora) *cli.Command {
	return &cli.Command{
		Name:      "emit-c",
		Usage:     "lower a TVM module and emit C99 source for it",
		ArgsUsage: "<file.tvm>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "triple", Value: "x86_64-unknown-linux-gnu", Usage: "target triple"},
		},
		Action: func(c *cli.Context) error {
			file := c.Args().First()
			if file == "" {
				return cli.Exit("emit-c requires a source file argument", 2)
			}

			src, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			ast, err := tvmparse.Parse(file, src)
			if err != nil {
				return err
			}

			mod, err := tvmbuild.Build(ast)
			if err != nil {
				return err
			}

			b, ok := backend.Lookup("emitc")
			if !ok {
				return cli.Exit("emitc backend is not registered", 1)
			}

			triple := c.String("triple")

			artifact, err := b.Compile(mod, triple)
			if err != nil {
				return err
			}

			src2, ok := artifact.(interface{ Source() string })
			if !ok {
				return cli.Exit("emitc artifact does not expose its source", 1)
			}

			fmt.Fprint(c.App.Writer, src2.Source())

			return nil
		},
	}
}

func runCommand(au aurora.Aurora) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "load a workspace manifest's modules into the JIT and report loaded symbols",
		ArgsUsage: "<tvm.toml>",
		Action: func(c *cli.Context) error {
			manifest := c.Args().First()
			if manifest == "" {
				manifest = "tvm.toml"
			}

			ws, err := workspace.Load(manifest)
			if err != nil {
				return err
			}

			backendName, ok := ws.JIT.Backend()
			if !ok {
				return cli.Exit(fmt.Sprintf("%s: [jit] table has no \"tvm.jit\" key", manifest), 1)
			}

			b, ok := backend.Lookup(backendName)
			if !ok {
				return cli.Exit(fmt.Sprintf("%s: unknown JIT backend %q", manifest, backendName), 1)
			}

			orch := jit.New(b, ws.Triple)
			defer orch.Destroy()

			for _, m := range ws.Modules {
				src, err := os.ReadFile(m.Path)
				if err != nil {
					return err
				}

				ast, err := tvmparse.Parse(m.Path, src)
				if err != nil {
					return err
				}

				mod, err := tvmbuild.Build(ast)
				if err != nil {
					return err
				}

				mod.Name = m.Name

				if err := orch.AddModule(mod); err != nil {
					return err
				}
			}

			for name, owner := range orch.Symbols() {
				fmt.Fprintf(c.App.Writer, "%s -> %s\n", au.Green(name), owner)
			}

			return nil
		},
	}
}

// printDiagnostic prints an error the way spec §7 describes: the file/line
// location in red for a hard error, yellow reserved for the backend's own
// non-fatal warnings (none of which this toolchain emits yet).
func printDiagnostic(au aurora.Aurora, err error) {
	if d, ok := err.(*diag.Error); ok {
		fmt.Fprintf(os.Stderr, "%s: %s\n", au.Red(d.Pos.String()), d.Message)
		return
	}

	fmt.Fprintln(os.Stderr, au.Red(err.Error()))
}
