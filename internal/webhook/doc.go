// Package webhook implements the WeChat webhook listener and the forwarding
// orchestration behind it.
//
// # Request Flow
//
//  1. GET /wechat/webhook: endpoint verification. Valid signature echoes
//     echostr as plain text; anything else is a 400.
//  2. POST /wechat/webhook: message delivery. Signature is checked first;
//     an invalid signature is the ONLY path that does not acknowledge.
//  3. Body size is bounded (default 100000 bytes) before any parsing.
//  4. If an encoding AES key is configured, the encrypted envelope is
//     decrypted; decryption failure falls back to treating the body as
//     plaintext rather than rejecting.
//  5. Only text messages are forwarded to the engagement platform. Every
//     other outcome (unsupported type, parse failure, missing fields,
//     downstream failure) is logged and acknowledged with an empty 200.
//
// # The Ack Invariant
//
// Once the signature has verified, the webhook sender always receives 200.
// Downstream delivery failures are logged with full context and swallowed
// here; surfacing them would trigger WeChat's own retry logic and duplicate
// deliveries. There is no retry queue: delivery is at-most-once.
package webhook
