// Command classroomctl runs maintenance tasks against the classroom database:
// schema migrations and topic order repair. It is intended to be invoked by
// operators or an external cron job.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"os"

	"github.com/heartmarshall/classroom-backend/internal/app"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = app.BuildVersion()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
