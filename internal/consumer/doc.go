// Package consumer drives queue messages describing Snyk import jobs to a
// terminal disposition: poll the import status, resolve the projects the
// import produced, apply the requested tags, then delete or requeue.
//
// Each in-flight message owns a background lease renewer that keeps the
// message hidden from other workers while processing runs. The renewer is
// always stopped — cancelled and awaited — before the terminal queue call,
// so a renewal can never race a delete or requeue on the same message.
package consumer
