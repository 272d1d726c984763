package models

// ScanDocument is the structured scan report produced by the scanner converter
type ScanDocument struct {
	Metadata ScanMetadata `json:"metadata"`
	Hosts    []Host       `json:"hosts"`
}

// ScanMetadata describes the scan run itself
type ScanMetadata struct {
	Scanner    string  `json:"scanner,omitempty"`
	Args       string  `json:"args,omitempty"`
	Start      string  `json:"start,omitempty"` // ISO-8601
	Elapsed    float64 `json:"elapsed,omitempty"`
	HostsUp    int     `json:"hosts_up,omitempty"`
	HostsTotal int     `json:"hosts_total,omitempty"`
	ScanType   string  `json:"scan_type,omitempty"`
}

// Host represents one scanned host
type Host struct {
	Address  string    `json:"address"`
	Hostname string    `json:"hostname"`
	Status   string    `json:"status,omitempty"`
	OS       string    `json:"os"`
	Accuracy int       `json:"accuracy,omitempty"`
	Services []Service `json:"services"`
	Scripts  []Script  `json:"scripts"`
}

// Service represents a scanned port and what answered on it
type Service struct {
	Protocol string       `json:"protocol,omitempty"`
	PortID   string       `json:"portid,omitempty"`
	State    string       `json:"state"`
	Service  *ServiceInfo `json:"service"`
	Scripts  []Script     `json:"scripts"`
}

// ServiceInfo is the service fingerprint of a port
type ServiceInfo struct {
	Name    string `json:"name"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// Name returns the service name, empty when unknown
func (s Service) Name() string {
	if s.Service == nil {
		return ""
	}
	return s.Service.Name
}

// IsOpen reports whether the port was recorded as open
func (s Service) IsOpen() bool {
	return s.State == "open"
}

// Script is the output of one NSE script, host- or service-level
type Script struct {
	ID       string          `json:"id"`
	Output   string          `json:"output"`
	Elements []ScriptElement `json:"elements,omitempty"`
	Tables   []any           `json:"tables,omitempty"` // arbitrary nested key/value tables
}

// ScriptElement is a top-level key/value pair of a script result
type ScriptElement struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
