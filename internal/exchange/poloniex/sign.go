package poloniex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// sign computes the request signature: base64(HMAC-SHA256(secret,
// "METHOD\n<path>\nrequestBody&signTimestamp=<ts>")).
func (c *Client) sign(method, path, body, timestamp string) string {
	payload := method + "\n" + path + "\n" + body + "&signTimestamp=" + timestamp
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
