// Command dbcore wires the storage engine's components together against a
// real database file: open, redo whatever the log has since the last
// shutdown, report readiness, then flush, log a clean shutdown and close.
// Query planning and a wire protocol are external collaborators (spec.md
// §1, §6) this binary doesn't attempt to be.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ryogrid/sharkfin/internal/buffer"
	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/recovery"
)

func main() {
	dbPath := flag.String("db", "sharkfin.db", "path to the database file")
	flag.Parse()

	dm, err := disk.NewFileManager(*dbPath)
	if err != nil {
		log.Fatalf("dbcore: %v", err)
	}
	defer dm.Shutdown()

	logMgr := recovery.NewLogManager(dm)
	logMgr.RunFlushThread()
	defer logMgr.StopFlushThread()

	pool := buffer.NewManager(common.BufferPoolSize, dm, logMgr)

	redo := recovery.NewRecovery(dm, pool.AsPageStore())
	redo.Redo()

	fmt.Println("sharkfin storage engine ready:", *dbPath)
	pool.FlushAllPages()

	shutdownRec := recovery.NewGracefulShutdownRecord()
	lsn := logMgr.AppendLogRecord(shutdownRec)
	logMgr.WaitFlushed(lsn)
}
