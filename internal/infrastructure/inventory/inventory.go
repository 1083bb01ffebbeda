// Package inventory renders an Ansible dynamic inventory from the
// provisioning engine's live outputs, so configuration playbooks can
// target the web tier without a hand-maintained hosts file.
package inventory

import (
	"encoding/json"
	"fmt"

	"github.com/switchover/switchover/internal/domain"
)

// Hostvars is the per-host variable set exposed to playbooks.
type Hostvars struct {
	AnsibleHost string `json:"ansible_host"`
	PrivateIP   string `json:"private_ip,omitempty"`
	VMName      string `json:"vm_name"`
	Slot        string `json:"slot"`
	Active      bool   `json:"active"`
}

// Group lists the hosts that belong to one inventory group.
type Group struct {
	Hosts []string `json:"hosts"`
}

// Meta carries hostvars in the layout Ansible expects under "_meta".
type Meta struct {
	Hostvars map[string]Hostvars `json:"hostvars"`
}

// Inventory is the full dynamic inventory document.
type Inventory struct {
	Webservers Group `json:"webservers"`
	Meta       Meta  `json:"_meta"`
}

// Build maps a slot deployment's live outputs into an inventory. Each
// slot contributes one host from its "<slot>_vm" output object; slots
// without provisioned outputs are skipped, so a half-built environment
// still yields a usable inventory.
func Build(live domain.LiveState) (Inventory, error) {
	inv := Inventory{
		Webservers: Group{Hosts: []string{}},
		Meta:       Meta{Hostvars: map[string]Hostvars{}},
	}

	for _, slot := range []domain.Slot{domain.SlotBlue, domain.SlotGreen} {
		prefix := string(slot) + "_vm."
		name := live.Outputs[prefix+"vm_name"]
		publicIP := live.Outputs[prefix+"public_ip"]
		if name == "" || publicIP == "" {
			continue
		}
		if _, exists := inv.Meta.Hostvars[name]; exists {
			return Inventory{}, fmt.Errorf("duplicate vm name %q across slots", name)
		}
		inv.Webservers.Hosts = append(inv.Webservers.Hosts, name)
		inv.Meta.Hostvars[name] = Hostvars{
			AnsibleHost: publicIP,
			PrivateIP:   live.Outputs[prefix+"private_ip"],
			VMName:      name,
			Slot:        string(slot),
			Active:      slot == live.ActiveSlot,
		}
	}
	return inv, nil
}

// Render builds the inventory and marshals it in the JSON form the
// ansible-inventory plugin protocol expects on stdout.
func Render(live domain.LiveState) ([]byte, error) {
	inv, err := Build(live)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal inventory: %w", err)
	}
	return out, nil
}
