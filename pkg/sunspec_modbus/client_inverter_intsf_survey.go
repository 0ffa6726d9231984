package sunspec_modbus

import (
	"errors"
	"fmt"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDRESS     = 40000
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_NAMEPLATE     = 120
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_CONTROLS      = 123
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204
	SUNSPEC_MAX_BLOCKS       = 20
)

var (
	ErrNotSunSpec    = errors.New("sunspec: marker not found")
	ErrMissingBlocks = errors.New("sunspec: required blocks not found")
)

// inverter
type inverterIntSFModbusBlocks struct {
	common    uint16
	inverter  uint16
	nameplate uint16
	status    uint16
	controls  uint16
}

func (blk *inverterIntSFModbusBlocks) AllBlocksDefined() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.nameplate > 0 &&
		blk.status > 0 && blk.controls > 0
}

func (inv *InverterIntSFModbusReader) survey() error {
	if err := checkSunSpecMarker(inv.ModbusClient); err != nil {
		return err
	}

	blocks := inverterIntSFModbusBlocks{}
	err := walkBlocks(inv.client, func(block *modbusBlock) bool {
		if block.id >= SUNSPEC_WK_INVERTERS_MIN && block.id <= SUNSPEC_WK_INVERTERS_MAX {
			blocks.inverter = block.baseAddr
		} else {
			switch block.id {
			case SUNSPEC_WK_COMMON:
				blocks.common = block.baseAddr
			case SUNSPEC_WK_NAMEPLATE:
				blocks.nameplate = block.baseAddr
			case SUNSPEC_WK_STATUS:
				blocks.status = block.baseAddr
			case SUNSPEC_WK_CONTROLS:
				blocks.controls = block.baseAddr
			}
		}
		return blocks.AllBlocksDefined()
	})
	if err != nil {
		return err
	}
	if !blocks.AllBlocksDefined() {
		return fmt.Errorf("%w (common, inverter, nameplate, status, controls): %+v", ErrMissingBlocks, blocks)
	}
	inv.blocks = blocks
	return nil
}

// common

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == 0xFFFF
}

func checkSunSpecMarker(client ModbusClient) error {
	str, err := client.readString(SUNSPEC_BASE_ADDRESS, 2)
	if err != nil {
		return err
	}
	if str != "SunS" {
		return fmt.Errorf("%w: got %q", ErrNotSunSpec, str)
	}
	return nil
}

// walkBlocks visits every block after the marker until visit returns true,
// the end block is found, or SUNSPEC_MAX_BLOCKS have been read.
func walkBlocks(client *modbus.ModbusClient, visit func(*modbusBlock) bool) error {
	var baseAddr uint16 = SUNSPEC_BASE_ADDRESS + 2
	for n := 0; n < SUNSPEC_MAX_BLOCKS; n++ {
		block, err := surveyModbusBlock(client, baseAddr)
		if err != nil {
			return err
		}
		if block.isEndBlock() {
			return nil
		}
		if visit(block) {
			return nil
		}
		baseAddr = baseAddr + block.length + 2
	}
	return nil
}

func surveyModbusBlock(client *modbus.ModbusClient, baseAddr uint16) (*modbusBlock, error) {
	regs, err := client.ReadRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       regs[0],
		length:   regs[1],
		baseAddr: baseAddr,
	}, nil
}

func tcpURL(ip string, port uint) string {
	return fmt.Sprintf("tcp://%s:%d", ip, port)
}
