package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

// FailOnError prints msg and err with the provided logger and exits with
// status 1 iff err is not nil.
func FailOnError(logger *log.Logger, err error, msg string) {
	if err == nil {
		return
	}
	logger.Printf("%s - %s", msg, err)
	os.Exit(1)
}

// WaitForSignal blocks forever waiting for SIGTERM, SIGINT or SIGHUP to arrive
// from the OS. When one of these signals occurs the provided callback is run
// and the program exits. The provided logger is used to print which signal was
// caught and a polite goodbye.
func WaitForSignal(logger *log.Logger, callback func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	// Block waiting for a signal to arrive
	sig := <-sigChan
	logger.Printf("Caught %s signal\n", sig.String())
	if callback != nil {
		callback()
	}
	logger.Printf("Goodbye\n")
	os.Exit(0)
}
