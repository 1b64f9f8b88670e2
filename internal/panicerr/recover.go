package panicerr

// Recover runs f in a new goroutine wrapped in a defer chain that turns any
// abnormal exit or panic — e.g. a dispatch fault from a malformed opcode
// triple deep in VM.Run — into a non-nil error return instead of a crash.
func Recover(name string, f func() error) error {
	errch := make(chan error, 1)
	go func() {
		defer close(errch)
		defer recoverExitError(name, errch)
		defer recoverPanicError(name, errch)
		errch <- f()
	}()
	return <-errch
}
