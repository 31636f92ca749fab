// Package gateway drives the visitor side of a safe link: a countdown that
// cannot be skipped, a verification step that sends the visitor to a random
// content item, and the final resolve of the token to its destination.
//
// The machine is cooperative. Only the countdown timer and the two network
// calls (handshake start and resolve) suspend it. The handshake is dispatched
// without waiting, and its outcome never gates a transition. Close cancels a
// pending timer; results of calls still in flight are ignored afterwards.
package gateway
