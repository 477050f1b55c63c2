// Package replay executes a recorded session for one virtual user.
//
// An Executor walks the steps in order. For every repeat of a step it
// builds the request body from earlier results, computes headers, sends the
// request through the host's Client, checks the response, stores the parsed
// body under the step's resultId and applies header setters. It then pauses
// for the recorded gap to the next step.
//
// The executor never touches package-level state. Everything it needs from
// its environment arrives through Host, which is how the same code serves
// live load runs and offline dry runs:
//
//	exec := replay.New(sess, hosts, replay.Host{Client: client}, replay.WithUser(u))
//	if err := exec.Run(ctx); err != nil {
//		// err is a *faults.Error for replay failures
//	}
package replay
