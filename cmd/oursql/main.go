// Command oursql is a thin REPL front end over the storage/sql packages.
//
// The REPL loop, result pretty-printing, and argument parsing live here
// deliberately outside the engine: this file is the "external collaborator"
// that drives Execute, not part of the engine's own design surface.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/tis-abe-akira/our-sql/internal/server"
	"github.com/tis-abe-akira/our-sql/sql"
	"github.com/tis-abe-akira/our-sql/storage"
)

var (
	flagDataDir = flag.String("data", "./oursql-data", "data directory for tables and catalog")
	flagGRPC    = flag.String("grpc", "", "gRPC listen address (empty disables the network front end)")
	flagVerbose = flag.Bool("v", false, "log each statement executed over gRPC")
)

func main() {
	flag.Parse()

	db, err := storage.Open(*flagDataDir)
	if err != nil {
		log.Fatalf("open database at %s: %v", *flagDataDir, err)
	}
	defer db.Close()

	if *flagGRPC != "" {
		go func() {
			if err := server.Serve(*flagGRPC, db, *flagVerbose); err != nil {
				log.Printf("gRPC server stopped: %v", err)
			}
		}()
	}

	runREPL(db)
}

func runREPL(db *storage.Database) {
	exec := sql.NewExecutor(db)
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	var buf strings.Builder
	for {
		if interactive {
			if buf.Len() == 0 {
				fmt.Print("oursql> ")
			} else {
				fmt.Print(" ... ")
			}
		}
		if !sc.Scan() {
			break
		}
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if !strings.Contains(line, ";") {
			continue
		}

		text := buf.String()
		buf.Reset()
		runStatement(exec, text)
	}
}

func runStatement(exec *sql.Executor, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	stmt, err := sql.Parse(text)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		return
	}
	res, err := exec.Execute(stmt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	printResult(res)
}

func printResult(res *sql.Result) {
	if res.Cols == nil {
		if res.RowsAffected > 0 {
			fmt.Printf("OK (%d row(s) affected)\n", res.RowsAffected)
		} else {
			fmt.Println("OK")
		}
		return
	}
	fmt.Println(strings.Join(res.Cols, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v.Type == storage.ColInt {
				cells[i] = strconv.FormatInt(v.Int, 10)
			} else {
				cells[i] = v.Text
			}
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	fmt.Printf("(%d row(s))\n", len(res.Rows))
}
