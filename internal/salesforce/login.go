package salesforce

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Credentials identify the integration user for a password login.
type Credentials struct {
	Username      string
	Password      string
	SecurityToken string
	Domain        string // "login" or "test"
	ClientID      string
	APIVersion    string
}

// ErrLoginFailed is wrapped by every login failure reported by the CRM.
var ErrLoginFailed = errors.New("salesforce login failed")

const loginEnvelope = `<?xml version="1.0" encoding="utf-8" ?>
<env:Envelope
        xmlns:xsd="http://www.w3.org/2001/XMLSchema"
        xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
        xmlns:env="http://schemas.xmlsoap.org/soap/envelope/"
        xmlns:urn="urn:partner.soap.sforce.com">
    <env:Header>
        <urn:CallOptions>
            <urn:client>%s</urn:client>
            <urn:defaultNamespace>sf</urn:defaultNamespace>
        </urn:CallOptions>
    </env:Header>
    <env:Body>
        <n1:login xmlns:n1="urn:partner.soap.sforce.com">
            <n1:username>%s</n1:username>
            <n1:password>%s%s</n1:password>
        </n1:login>
    </env:Body>
</env:Envelope>`

type loginEnvelopeResponse struct {
	Body struct {
		LoginResponse struct {
			Result struct {
				ServerURL string `xml:"serverUrl"`
				SessionID string `xml:"sessionId"`
			} `xml:"result"`
		} `xml:"loginResponse"`
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// LoginURL returns the SOAP partner endpoint for a login domain.
func LoginURL(domain, apiVersion string) string {
	return fmt.Sprintf("https://%s.salesforce.com/services/Soap/u/%s", domain, apiVersion)
}

// Login performs a SOAP username/password login and returns a REST client
// bound to the instance that answered.
func Login(ctx context.Context, creds Credentials, httpClient *http.Client) (*Client, error) {
	return LoginAt(ctx, LoginURL(creds.Domain, creds.APIVersion), creds, httpClient)
}

// LoginAt is Login against an explicit endpoint.
func LoginAt(ctx context.Context, endpoint string, creds Credentials, httpClient *http.Client) (*Client, error) {
	body := fmt.Sprintf(loginEnvelope,
		html.EscapeString(creds.ClientID),
		html.EscapeString(creds.Username),
		html.EscapeString(creds.Password),
		html.EscapeString(creds.SecurityToken),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", "login")
	req.Header.Set("charset", "UTF-8")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}

	var env loginEnvelopeResponse
	if err := xml.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: status %d: undecodable response: %v", ErrLoginFailed, resp.StatusCode, err)
	}
	if f := env.Body.Fault; f != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrLoginFailed, f.Code, f.String)
	}

	result := env.Body.LoginResponse.Result
	if result.SessionID == "" || result.ServerURL == "" {
		return nil, fmt.Errorf("%w: status %d: response has no session", ErrLoginFailed, resp.StatusCode)
	}

	server, err := url.Parse(result.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server url %q: %v", ErrLoginFailed, result.ServerURL, err)
	}
	instance := server.Scheme + "://" + server.Host

	return NewClient(instance, result.SessionID, creds.APIVersion, httpClient), nil
}
