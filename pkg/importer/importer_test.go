package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icecake0141/nwrunner/pkg/models"
)

func TestImport_ParsesValidRows(t *testing.T) {
	csvContent := "host,device_type,username,password,port,name,verify_cmds\n" +
		"10.0.0.1,cisco_ios,admin,secret,,edge-1,show version;show ip int brief\n" +
		"10.0.0.2,juniper_junos,admin,secret,2222,,\n"

	res, err := Import(csvContent)
	require.NoError(t, err)
	require.Len(t, res.Devices, 2)
	assert.Empty(t, res.FailedRows)

	first := res.Devices[0]
	assert.Equal(t, "10.0.0.1", first.Host)
	assert.Equal(t, 22, first.Port)
	assert.Equal(t, "edge-1", first.Name)
	assert.Equal(t, []string{"show version", "show ip int brief"}, first.VerifyCmds)

	second := res.Devices[1]
	assert.Equal(t, 2222, second.Port)
}

func TestImport_MissingRequiredFieldReportedAsFailedRow(t *testing.T) {
	csvContent := "host,device_type,username,password\n" +
		"10.0.0.1,cisco_ios,admin,\n" +
		"10.0.0.2,cisco_ios,admin,secret\n"

	res, err := Import(csvContent)
	require.NoError(t, err)
	require.Len(t, res.FailedRows, 1)
	assert.Equal(t, 2, res.FailedRows[0].RowNumber)
	assert.Contains(t, res.FailedRows[0].Error, "password")
	require.Len(t, res.Devices, 1)
}

func TestImport_InvalidPortReportedAsFailedRow(t *testing.T) {
	csvContent := "host,device_type,username,password,port\n" +
		"10.0.0.1,cisco_ios,admin,secret,notaport\n"

	res, err := Import(csvContent)
	require.NoError(t, err)
	require.Len(t, res.FailedRows, 1)
	assert.Contains(t, res.FailedRows[0].Error, "invalid port value")
	assert.Empty(t, res.Devices)
}

func TestValidate_FiltersUnreachableDevices(t *testing.T) {
	devices := []models.DeviceProfile{
		{DeviceTarget: models.DeviceTarget{Host: "10.0.0.1", Port: 22}},
		{DeviceTarget: models.DeviceTarget{Host: "10.0.0.2", Port: 22}},
	}

	validator := SimulatedValidator{Unreachable: map[string]string{"10.0.0.2:22": "connection refused"}}

	valid := Validate(context.Background(), devices, validator)
	require.Len(t, valid, 1)
	assert.Equal(t, "10.0.0.1", valid[0].Host)
	assert.True(t, valid[0].ConnectionOK)
}

func TestRevalidate_DoesNotDropUnreachableDevices(t *testing.T) {
	devices := []models.DeviceProfile{
		{DeviceTarget: models.DeviceTarget{Host: "10.0.0.1", Port: 22}, ConnectionOK: true},
	}

	validator := SimulatedValidator{Unreachable: map[string]string{"10.0.0.1:22": "timeout"}}

	out := Revalidate(context.Background(), devices, validator)
	require.Len(t, out, 1)
	assert.False(t, out[0].ConnectionOK)
	assert.Equal(t, "timeout", out[0].ErrorMessage)
}

func TestCheckDisruptive_RejectsKnownPatterns(t *testing.T) {
	_, pattern, disruptive := CheckDisruptive([]string{"show version", "conf t"})
	assert.True(t, disruptive)
	assert.Equal(t, "conf t", pattern)
}

func TestCheckDisruptive_AllowsReadOnlyCommands(t *testing.T) {
	_, _, disruptive := CheckDisruptive([]string{"show version", "show running-config"})
	assert.False(t, disruptive)
}

func TestCheckDisruptive_IsCaseInsensitive(t *testing.T) {
	_, pattern, disruptive := CheckDisruptive([]string{"RELOAD"})
	assert.True(t, disruptive)
	assert.Equal(t, "reload", pattern)
}
