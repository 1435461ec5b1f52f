// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type HttpReader struct {
	serverIP   string // listen ip
	serverPort string // listen port
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return &HttpReader{
		serverIP:   serverIP,
		serverPort: serverPort,
	}
}

func (hr *HttpReader) get(route string, query url.Values) ([]byte, int, error) {
	u := "http://" + hr.serverIP + ":" + hr.serverPort + route
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	resp, err := http.Get(u)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// getData decodes the "data" field of a 200 reply into v.
func (hr *HttpReader) getData(route string, query url.Values, v any) error {
	body, code, err := hr.get(route, query)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", route, code, body)
	}
	return json.Unmarshal(body, &struct {
		Data any `json:"data"`
	}{Data: v})
}

func (hr *HttpReader) GetHello() (string, error) {
	body, _, err := hr.get(ROUTE_HELLO, nil)
	return string(body), err
}

func (hr *HttpReader) GetBurns(address string) ([]*BurnJSON, error) {
	query := url.Values{}
	if address != "" {
		query.Set("address", address)
	}
	var burns []*BurnJSON
	err := hr.getData(ROUTE_BURNS, query, &burns)
	return burns, err
}

func (hr *HttpReader) GetMints(address, status string) ([]*MintJSON, error) {
	query := url.Values{}
	if address != "" {
		query.Set("address", address)
	}
	if status != "" {
		query.Set("status", status)
	}
	var mints []*MintJSON
	err := hr.getData(ROUTE_MINTS, query, &mints)
	return mints, err
}

func (hr *HttpReader) GetStatus() (*StatusJSON, error) {
	status := &StatusJSON{}
	err := hr.getData(ROUTE_STATUS, nil, status)
	return status, err
}
