// Package room extends pairwise sessions to multi-party rooms.
//
// There is no shared room key: the coordinator keeps one pairwise session
// per remote member (a full mesh when every participant does the same),
// so compromising one pairwise session never exposes traffic between any
// other pair.
//
// A joining member is Pending until its handshake completes and receives
// no broadcast traffic. Join and Leave are serialised against Broadcast,
// which encrypts against a consistent membership snapshot.
package room
