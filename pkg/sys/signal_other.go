//go:build !unix

package sys

import "os"

var interruptSignals = []os.Signal{os.Interrupt}

func signalName(sig os.Signal) string { return sig.String() }
